package pdfcheck

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
	"unicode"
)

// DefaultThreshold is the minimum number of non whitespace characters a
// sampled document must yield to count as text extractable.
const DefaultThreshold = 300

// PageCount records the probe outcome for one sampled page.
type PageCount struct {
	Index int    `json:"index"`
	Chars int    `json:"chars"`
	Err   string `json:"err,omitempty"`
}

// Result describes a text extractability probe over a sampled document.
type Result struct {
	Path        string        `json:"path"`
	TotalPages  int           `json:"total_pages"`
	Sampled     []int         `json:"sampled"`
	Chars       int           `json:"chars"`
	Threshold   int           `json:"threshold"`
	Pages       []PageCount   `json:"pages,omitempty"`
	Extractable bool          `json:"extractable"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Doc abstracts an open PDF for text extraction.
type Doc interface {
	NumPage() int
	Text(i int) (string, error)
	Close() error
}

// OpenFunc opens a PDF path into a Doc.
type OpenFunc func(path string) (Doc, error)

// Checker probes PDFs for extractable text by sampling a handful of
// pages instead of walking the whole document.
type Checker struct {
	// Threshold overrides DefaultThreshold when positive.
	Threshold int
	// Open overrides the go-fitz backed default, useful in tests.
	Open OpenFunc
}

// New creates a checker with the default threshold and opener.
func New() *Checker {
	return &Checker{Threshold: DefaultThreshold, Open: openDoc}
}

// Probe samples pages of the PDF at path and reports whether enough
// text came back to call the document text extractable. Unreadable
// pages count as zero characters rather than failing the probe.
func (c *Checker) Probe(path string) (*Result, error) {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	open := c.Open
	if open == nil {
		return nil, errors.New("no pdf opener configured")
	}

	start := time.Now()
	doc, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	res := &Result{Path: path, TotalPages: doc.NumPage(), Threshold: threshold, Sampled: []int{}}
	if res.TotalPages <= 0 {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Sampled = samplePages(res.TotalPages)
	for _, idx := range res.Sampled {
		pc := PageCount{Index: idx}
		text, terr := doc.Text(idx)
		if terr != nil {
			pc.Err = terr.Error()
			res.Pages = append(res.Pages, pc)
			continue
		}
		pc.Chars = countText(text)
		res.Chars += pc.Chars
		res.Pages = append(res.Pages, pc)
		if res.Chars >= threshold {
			// Enough text seen, skip the remaining samples.
			break
		}
	}

	res.Extractable = res.Chars >= threshold
	res.Elapsed = time.Since(start)
	return res, nil
}

// countText counts runes excluding all Unicode whitespace.
func countText(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// samplePages picks up to five page indices: every page for short
// documents, otherwise first, middle and last plus random distinct
// fills. The result is sorted.
func samplePages(total int) []int {
	if total <= 5 {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}

	picked := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	for len(picked) < 5 {
		picked[rand.Intn(total)] = struct{}{}
	}

	out := make([]int, 0, len(picked))
	for i := range picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
