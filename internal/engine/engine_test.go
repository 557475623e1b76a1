package engine

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/pdfcheck"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/placeholder"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/preview"
)

// fakeSynth wraps the real generator with per-label failure injection.
type fakeSynth struct {
	gen   *placeholder.Generator
	fail  map[string]bool
	calls []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, label string) (string, error) {
	f.calls = append(f.calls, label)
	if f.fail[label] {
		return "", errors.New("render failed")
	}
	return f.gen.Synthesize(ctx, label)
}

// recorder collects observer notifications.
type recorder struct {
	mu       sync.Mutex
	progress [][2]int
	lines    []string
	done     []bool
}

func (rec *recorder) Progress(processed, total int) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.progress = append(rec.progress, [2]int{processed, total})
}

func (rec *recorder) Log(message string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.lines = append(rec.lines, message)
}

func (rec *recorder) Done(success bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.done = append(rec.done, success)
}

type fixture struct {
	t      *testing.T
	folder string
	synth  *fakeSynth
	tmpDir string
	gen    *placeholder.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmpDir := t.TempDir()
	gen := placeholder.New()
	gen.TmpDir = tmpDir
	return &fixture{
		t:      t,
		folder: t.TempDir(),
		synth:  &fakeSynth{gen: gen, fail: map[string]bool{}},
		tmpDir: tmpDir,
		gen:    gen,
	}
}

// addPDF drops a valid one page PDF with the given name into the
// source folder.
func (f *fixture) addPDF(name string) {
	f.t.Helper()
	fixtures := placeholder.New()
	fixtures.TmpDir = f.t.TempDir()
	tmp, err := fixtures.Synthesize(context.Background(), "fixture")
	require.NoError(f.t, err)
	require.NoError(f.t, os.Rename(tmp, filepath.Join(f.folder, name)))
}

func (f *fixture) addFile(name, content string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(filepath.Join(f.folder, name), []byte(content), 0o644))
}

func (f *fixture) run(deps ...func(*Dependencies)) (*RunResult, *recorder) {
	f.t.Helper()
	d := Dependencies{Placeholders: f.synth}
	for _, fn := range deps {
		fn(&d)
	}
	rec := &recorder{}
	res := New(d).Run(context.Background(), f.folder, rec)
	return res, rec
}

func (f *fixture) mergedPath(name string) string {
	return filepath.Join(f.folder, OutputDirName, MergedDirName, name)
}

func (f *fixture) qcPath(name string) string {
	return filepath.Join(f.folder, OutputDirName, QCDirName, name)
}

func pageCount(t *testing.T, path string) int {
	t.Helper()
	n, err := api.PageCountFile(path)
	require.NoError(t, err)
	return n
}

func hasLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunMergesFamiliesInOrder(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")
	f.addPDF("A.0001.pdf")
	f.addPDF("A.0002.pdf")
	f.addPDF("B.pdf")

	res, rec := f.run()

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Families)
	require.Len(t, res.Results, 2)

	assert.Equal(t, 3, pageCount(t, f.mergedPath("A.pdf")))
	assert.Equal(t, 1, pageCount(t, f.mergedPath("B.pdf")))

	lines := res.Report.Lines()
	assert.True(t, hasLine(lines, "Processing family: A. Files to merge (in order): A.pdf, A.0001.pdf, A.0002.pdf"))
	assert.True(t, hasLine(lines, "Successfully merged 3 file(s) into: "+filepath.Join(MergedDirName, "A.pdf")))

	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, rec.progress)
	assert.Equal(t, []bool{true}, rec.done)
	assert.Equal(t, lines, rec.lines)
}

func TestRunNativePlaceholder(t *testing.T) {
	f := newFixture(t)
	f.addPDF("B.pdf")
	f.addFile("B.0001.xlsx", "not really a spreadsheet")

	res, _ := f.run()

	require.True(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Native)
	assert.Equal(t, 2, res.Results[0].Members)
	assert.Equal(t, 2, pageCount(t, f.mergedPath("B.pdf")))
	assert.Equal(t, []string{"B.0001"}, f.synth.calls)

	lines := res.Report.Lines()
	assert.True(t, hasLine(lines, "Creating placeholder for native file: B.0001.xlsx"))
	assert.True(t, hasLine(lines, "Largest family PDF (B.pdf) also contained a native; already copied for QC."))
	assert.FileExists(t, f.qcPath("B.pdf"))

	// Temp placeholders are swept after the run.
	left, err := os.ReadDir(f.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.True(t, hasLine(lines, "Temporary file cleanup completed."))
}

func TestRunCorruptMemberSkipped(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")
	f.addFile("A.0001.pdf", "this is not a pdf")
	f.addPDF("A.0002.pdf")

	res, _ := f.run()

	require.True(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 2, res.Results[0].Members)
	assert.Equal(t, 2, pageCount(t, f.mergedPath("A.pdf")))
	assert.True(t, hasLine(res.Report.Lines(), "ERROR: Could not read/process A.0001.pdf"))
}

func TestRunFamilyWithNoReadableMembers(t *testing.T) {
	f := newFixture(t)
	f.addFile("C.pdf", "broken")
	f.addPDF("D.pdf")

	res, rec := f.run()

	require.True(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "D", res.Results[0].FamilyKey)
	assert.NoFileExists(t, f.mergedPath("C.pdf"))
	assert.True(t, hasLine(res.Report.Lines(), "No files were successfully added to the merger for family C. No output generated."))
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, rec.progress)
}

func TestRunPlaceholderFailureDropsItem(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")
	f.addFile("B.msg", "outlook-ish")
	f.synth.fail["B"] = true

	res, rec := f.run()

	require.True(t, res.Success)
	lines := res.Report.Lines()
	assert.True(t, hasLine(lines, "ERROR: Failed to create placeholder for B.msg. It will be skipped."))
	assert.True(t, hasLine(lines, "No valid files to merge for family B. Skipping."))
	assert.NoFileExists(t, f.mergedPath("B.pdf"))

	// The emptied family still counts toward progress.
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, rec.progress)
}

func TestRunQCSelection(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")
	f.addPDF("A.0001.pdf")
	f.addPDF("A.0002.pdf")
	f.addPDF("B.pdf")
	f.addFile("B.0001.docx", "word doc")

	res, _ := f.run()

	require.True(t, res.Success)
	assert.Equal(t, f.mergedPath("A.pdf"), res.QC.LargestPath)
	assert.Equal(t, f.mergedPath("B.pdf"), res.QC.FirstNativePath)
	assert.FileExists(t, f.qcPath("A.pdf"))
	assert.FileExists(t, f.qcPath("B.pdf"))

	lines := res.Report.Lines()
	assert.True(t, hasLine(lines, "Copied largest family PDF to QC Docs: A.pdf"))
	assert.True(t, hasLine(lines, "Copied first PDF with native placeholder to QC Docs: B.pdf"))
}

func TestRunNoNativesLogsCriterion(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")

	res, _ := f.run()

	require.True(t, res.Success)
	assert.True(t, hasLine(res.Report.Lines(), "No families contained native placeholders; no specific QC doc for this criterion."))
}

func TestRunOutputNamedAfterFirstSortedMember(t *testing.T) {
	f := newFixture(t)
	f.addFile("A.pdf", "corrupt primary")
	f.addPDF("A.0001.pdf")

	res, _ := f.run()

	require.True(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.Equal(t, f.mergedPath("A.pdf"), res.Results[0].Output)
	assert.Equal(t, 1, pageCount(t, f.mergedPath("A.pdf")))
}

func TestRunWritesCSVBeforeCleanup(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")

	res, _ := f.run()
	require.True(t, res.Success)

	rows := readCSV(t, filepath.Join(f.folder, OutputDirName, LogName))
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"Message"}, rows[0])

	var flat []string
	for _, row := range rows[1:] {
		flat = append(flat, row[0])
	}
	assert.False(t, hasLine(flat, "Merge log saved to:"))
	assert.False(t, hasLine(flat, "Cleaning up temporary files..."))

	lines := res.Report.Lines()
	assert.True(t, hasLine(lines, "Merge log saved to: "+filepath.Join(OutputDirName, LogName)))
	assert.True(t, hasLine(lines, "Cleaning up temporary files..."))
}

func TestRunIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")
	f.addPDF("A.0001.pdf")

	res1, _ := f.run()
	require.True(t, res1.Success)
	first := pageCount(t, f.mergedPath("A.pdf"))

	res2, _ := f.run()
	require.True(t, res2.Success)
	assert.Equal(t, first, pageCount(t, f.mergedPath("A.pdf")))
	assert.Equal(t, res1.Families, res2.Families)

	entries, err := os.ReadDir(filepath.Join(f.folder, OutputDirName, MergedDirName))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunEmptyFolder(t *testing.T) {
	f := newFixture(t)

	res, rec := f.run()

	require.True(t, res.Success)
	assert.Zero(t, res.Families)
	assert.Empty(t, rec.progress)
	assert.True(t, hasLine(res.Report.Lines(), "Pass 2 completed."))
	assert.FileExists(t, filepath.Join(f.folder, OutputDirName, LogName))
}

func TestRunFatalWhenOutputTreeUnusable(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "source")
	require.NoError(t, os.WriteFile(folder, []byte("a file, not a folder"), 0o644))

	f := &fixture{t: t, folder: folder, synth: &fakeSynth{gen: placeholder.New(), fail: map[string]bool{}}}
	res, rec := f.run()

	assert.False(t, res.Success)
	assert.True(t, hasLine(res.Report.Lines(), "CRITICAL ERROR: Could not create output directories:"))
	assert.Equal(t, []bool{false}, rec.done)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	res := New(Dependencies{Placeholders: f.synth}).Run(ctx, f.folder, rec)

	assert.False(t, res.Success)
	assert.True(t, hasLine(res.Report.Lines(), "ERROR: Run cancelled:"))
	assert.Equal(t, []bool{false}, rec.done)
}

func TestRunIgnoresOwnArtifactsAndSubdirs(t *testing.T) {
	f := newFixture(t)
	f.addPDF("A.pdf")
	f.addFile("tmp_merger_leftover_abc.pdf", "stale temp file")
	require.NoError(t, os.Mkdir(filepath.Join(f.folder, "nested"), 0o755))

	res, _ := f.run()

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Families)
	assert.False(t, hasLine(res.Report.Lines(), "tmp_merger_leftover_abc.pdf"))
}

func TestRunQCInspection(t *testing.T) {
	f := newFixture(t)
	f.addPDF("B.pdf")
	f.addFile("B.0001.txt", "plain native")

	res, _ := f.run(func(d *Dependencies) {
		d.Checker = pdfcheck.New()
		d.Previews = preview.New()
	})

	require.True(t, res.Success)
	lines := res.Report.Lines()
	assert.True(t, hasLine(lines, "has little or no extractable text"))
	assert.True(t, hasLine(lines, "QC preview written: B.pdf"+preview.Suffix))

	data, err := os.ReadFile(f.qcPath("B.pdf") + preview.Suffix)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
