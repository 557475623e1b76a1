package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/filetype"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/identifier"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/metrics"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/pdfcheck"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/preview"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/report"
)

// Output layout created under the source folder. The names are part of
// the product contract and must not change between releases.
const (
	OutputDirName = "Merged Output"
	MergedDirName = "Merged PDFs"
	QCDirName     = "QC Docs"
	LogName       = "Merge Log.csv"
)

// Synthesizer produces placeholder PDFs for native family members.
type Synthesizer interface {
	Synthesize(ctx context.Context, label string) (string, error)
}

// Events receives asynchronous notifications while a run executes. All
// methods are called from the run's goroutine and must not block.
type Events interface {
	Progress(processed, total int)
	Log(message string)
	Done(success bool)
}

type noopEvents struct{}

func (noopEvents) Progress(int, int) {}
func (noopEvents) Log(string)        {}
func (noopEvents) Done(bool)         {}

// Dependencies wires the collaborators a run needs. Placeholders is
// required, the rest are optional extras.
type Dependencies struct {
	Placeholders Synthesizer
	Detector     *filetype.Detector
	Checker      *pdfcheck.Checker
	Previews     *preview.Renderer
}

// MergeResult describes one successfully written family output.
type MergeResult struct {
	FamilyKey string `json:"family_key"`
	Output    string `json:"output"`
	Members   int    `json:"members"`
	Native    bool   `json:"native"`
}

// QCSelection names the outputs picked for quality control review.
type QCSelection struct {
	LargestPath     string   `json:"largest_path,omitempty"`
	FirstNativePath string   `json:"first_native_path,omitempty"`
	Copied          []string `json:"copied,omitempty"`
}

// RunResult is the outcome of one folder run.
type RunResult struct {
	ID       string         `json:"id"`
	Folder   string         `json:"folder"`
	Success  bool           `json:"success"`
	Families int            `json:"families"`
	Results  []MergeResult  `json:"results,omitempty"`
	QC       QCSelection    `json:"qc"`
	Report   *report.Report `json:"-"`
	Elapsed  time.Duration  `json:"elapsed"`
}

// Engine executes folder runs: group files into families, merge each
// family into one PDF and select QC samples.
type Engine struct {
	deps Dependencies
	conf *model.Configuration
}

// New creates an engine around the given collaborators.
func New(deps Dependencies) *Engine {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Engine{deps: deps, conf: conf}
}

// Run processes one source folder end to end. Failures of individual
// files or families are logged and skipped; only an unusable output
// tree or source folder fails the run. The returned result carries the
// full ordered report.
func (e *Engine) Run(ctx context.Context, folder string, events Events) *RunResult {
	return e.RunWithID(ctx, uuid.NewString(), folder, events)
}

// RunWithID is Run with a caller supplied run ID, for callers that mint
// the ID ahead of execution (the queue does, so clients can poll before
// the run starts).
func (e *Engine) RunWithID(ctx context.Context, id, folder string, events Events) *RunResult {
	if events == nil {
		events = noopEvents{}
	}

	r := &run{
		eng:      e,
		id:       id,
		folder:   folder,
		baseDir:  filepath.Join(folder, OutputDirName),
		mergeDir: filepath.Join(folder, OutputDirName, MergedDirName),
		qcDir:    filepath.Join(folder, OutputDirName, QCDirName),
		byKey:    make(map[string]*Family),
		paths:    make(map[string]string),
		report:   report.New(),
		events:   events,
	}

	log.Info().Str("run_id", r.id).Str("folder", folder).Msg("run started")
	metrics.RunStarted()
	start := time.Now()

	success := r.execute(ctx)

	elapsed := time.Since(start)
	metrics.RunFinished()
	metrics.ObserveRun(resultLabel(success), elapsed)
	r.report.SetVerdict(success)
	log.Info().
		Str("run_id", r.id).
		Bool("success", success).
		Int("families", len(r.families)).
		Int("merged", len(r.results)).
		Dur("elapsed", elapsed).
		Msg("run finished")
	events.Done(success)

	return &RunResult{
		ID:       r.id,
		Folder:   folder,
		Success:  success,
		Families: len(r.families),
		Results:  r.results,
		QC:       r.qc,
		Report:   r.report,
		Elapsed:  elapsed,
	}
}

// run carries the state of a single folder run. Built up during Pass 1,
// read only during Pass 2 apart from the aggregates.
type run struct {
	eng    *Engine
	id     string
	folder string

	baseDir  string
	mergeDir string
	qcDir    string

	// Pass 1 output: families in first seen order, item name to
	// resolved path, and placeholder temp files pending deletion.
	families []*Family
	byKey    map[string]*Family
	paths    map[string]string
	cleanup  []string

	// Pass 2 aggregates.
	bestCount       int
	largestPath     string
	firstNativePath string
	anyNative       bool

	results []MergeResult
	qc      QCSelection

	report *report.Report
	events Events

	cleanupOnce sync.Once
}

// execute drives the run. Temp placeholders are swept on every exit
// path.
func (r *run) execute(ctx context.Context) bool {
	defer r.deleteTemps()

	if err := r.makeOutputDirs(); err != nil {
		r.error(fmt.Sprintf("CRITICAL ERROR: Could not create output directories: %v", err))
		return false
	}
	r.info(fmt.Sprintf("Output folders created/ensured: %s", r.baseDir))

	names, err := r.listSourceFiles()
	if err != nil {
		r.error(fmt.Sprintf("ERROR: Could not read source directory: %s. %v", r.folder, err))
		return false
	}

	if err := r.pass1(ctx, names); err != nil {
		r.error(fmt.Sprintf("ERROR: Run cancelled: %v", err))
		return false
	}

	if err := r.pass2(ctx); err != nil {
		r.error(fmt.Sprintf("ERROR: Run cancelled: %v", err))
		return false
	}

	r.selectQC()
	r.saveLog()
	r.deleteTemps()
	return true
}

// info appends a line to the run report, forwards it to the observer
// and mirrors it to the service log. warn and error do the same at
// their respective levels; the report line itself carries the severity
// prefix expected by reviewers of the CSV.
func (r *run) info(msg string) {
	r.emit(msg)
	log.Info().Str("run_id", r.id).Msg(msg)
}

func (r *run) warn(msg string) {
	r.emit(msg)
	log.Warn().Str("run_id", r.id).Msg(msg)
}

func (r *run) error(msg string) {
	r.emit(msg)
	log.Error().Str("run_id", r.id).Msg(msg)
}

func (r *run) emit(msg string) {
	r.report.Append(msg)
	r.events.Log(msg)
}

// deleteTemps removes placeholder files exactly once per run, best
// effort. Runs on every exit path.
func (r *run) deleteTemps() {
	r.cleanupOnce.Do(func() {
		r.info("Cleaning up temporary files...")
		for _, path := range r.cleanup {
			if err := removeIfExists(path); err != nil {
				r.warn(fmt.Sprintf("WARNING: Could not delete temporary placeholder %s: %v", path, err))
			}
		}
		r.info("Temporary file cleanup completed.")
	})
}

// saveLog persists the report collected so far as CSV. Lines emitted
// after this point reach the observer and service log only.
func (r *run) saveLog() {
	path := filepath.Join(r.baseDir, LogName)
	if err := r.report.SaveCSV(path); err != nil {
		r.error(fmt.Sprintf("ERROR: Could not write CSV log file: %v", err))
		return
	}
	r.info(fmt.Sprintf("Merge log saved to: %s", filepath.Join(OutputDirName, LogName)))
}

func (r *run) makeOutputDirs() error {
	for _, dir := range []string{r.baseDir, r.mergeDir, r.qcDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// outputName derives a family's merged filename from its first sorted
// member, extension replaced with .pdf.
func outputName(firstMember string) string {
	return identifier.Label(firstMember) + ".pdf"
}
