package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// header defines the single-column log sheet layout.
var header = []string{"Message"}

// CSVWriter serializes report lines as CSV, one row per message.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w)}
}

// WriteHeader writes the Message header row.
func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(header)
}

// WriteLines writes one row per line.
func (w *CSVWriter) WriteLines(lines []string) error {
	for _, line := range lines {
		if err := w.csv.Write([]string{line}); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *CSVWriter) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *CSVWriter) Error() error {
	return w.csv.Error()
}

// SaveCSV writes the lines appended so far to path, overwriting any previous
// file. Lines appended after this call are not persisted.
func (r *Report) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	w := NewCSVWriter(f)
	if err := w.WriteHeader(); err != nil {
		f.Close()
		return fmt.Errorf("write log header: %w", err)
	}
	if err := w.WriteLines(r.Lines()); err != nil {
		f.Close()
		return fmt.Errorf("write log rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush log: %w", err)
	}
	return f.Close()
}
