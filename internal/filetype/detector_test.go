package filetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"CTRL00000001.pdf", true},
		{"CTRL00000001.PDF", true},
		{"CTRL00000001.Pdf", true},
		{"CTRL00000001.0002.pdf", true},
		{"CTRL00000001.xlsx", false},
		{"CTRL00000001.pdfx", false},
		{"CTRL00000001", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPDF(tt.name), tt.name)
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectPDF(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", []byte("%PDF-1.4\n%%EOF\n"))

	d := New()
	info, err := d.Detect(path)
	require.NoError(t, err)
	assert.True(t, info.PDF)
	assert.Equal(t, "application/pdf", info.MIMEType)
	assert.Equal(t, "PDF document", info.Description)
}

func TestDetectPlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("native attachment contents\n"))

	d := New()
	info, err := d.Detect(path)
	require.NoError(t, err)
	assert.False(t, info.PDF)
	assert.Equal(t, "Plain text file", info.Description)
}

func TestDetectMislabeledPDF(t *testing.T) {
	// A text file wearing a .pdf extension still classifies as a PDF
	// member by name, but magic bytes expose the mismatch.
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", []byte("this is not a pdf"))

	d := New()
	info, err := d.Detect(path)
	require.NoError(t, err)
	assert.True(t, IsPDF(path))
	assert.False(t, info.PDF)
}

func TestDescribeFallback(t *testing.T) {
	d := New()
	assert.Equal(t, "xlsx file", d.Describe(filepath.Join(t.TempDir(), "missing.xlsx")))
	assert.Equal(t, "unknown file", d.Describe(filepath.Join(t.TempDir(), "missing")))
}
