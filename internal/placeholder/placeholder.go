package placeholder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// TempPrefix marks placeholder files created in the temp dir so that
// leftovers from interrupted runs are easy to spot and sweep.
const TempPrefix = "tmp_merger_"

// ErrZeroPage reports a synthesized placeholder that read back with no
// pages. The artifact is removed before the error is returned.
var ErrZeroPage = errors.New("placeholder has no pages")

// Page layout constants, US Letter coordinates in points.
const (
	titleText = "PRODUCED IN NATIVE FORMAT"
	titleFont = "Helvetica-Bold"
	titleSize = 24
	labelFont = "Helvetica"
	labelSize = 10
	labelDX   = -54 // 0.75in in from the right edge
	labelDY   = 36  // 0.5in up from the bottom edge
)

// Generator synthesizes single page placeholder PDFs that stand in for
// native files during a merge.
type Generator struct {
	// TmpDir overrides the directory placeholders are written to.
	// Empty means the system temp dir.
	TmpDir string

	conf *model.Configuration
}

// New creates a placeholder generator with relaxed PDF validation.
func New() *Generator {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Generator{conf: conf}
}

// JSON shape consumed by the pdfcpu create API.
type fontDesc struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type textDesc struct {
	Value  string   `json:"value"`
	Anchor string   `json:"anchor"`
	Dx     float64  `json:"dx,omitempty"`
	Dy     float64  `json:"dy,omitempty"`
	Font   fontDesc `json:"font"`
}

type contentDesc struct {
	Text []textDesc `json:"text"`
}

type pageDesc struct {
	Content contentDesc `json:"content"`
}

type docDesc struct {
	Paper string              `json:"paper"`
	Pages map[string]pageDesc `json:"pages"`
}

// Synthesize writes a one page placeholder PDF for the given family
// member label and returns its path. The caller owns the file and is
// responsible for removing it.
func (g *Generator) Synthesize(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	desc := docDesc{
		Paper: "Letter",
		Pages: map[string]pageDesc{
			"1": {Content: contentDesc{Text: []textDesc{
				{
					Value:  titleText,
					Anchor: "center",
					Font:   fontDesc{Name: titleFont, Size: titleSize},
				},
				{
					Value:  label,
					Anchor: "bottomRight",
					Dx:     labelDX,
					Dy:     labelDY,
					Font:   fontDesc{Name: labelFont, Size: labelSize},
				},
			}}},
		},
	}

	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("failed to encode placeholder layout: %w", err)
	}

	f, err := os.CreateTemp(g.TmpDir, TempPrefix+label+"_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create placeholder temp file: %w", err)
	}
	path := f.Name()

	if err := api.Create(nil, bytes.NewReader(data), f, g.conf); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to create placeholder pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close placeholder pdf: %w", err)
	}

	// Re-open what was just written. A placeholder that cannot be read
	// back would poison the merge, so it is discarded here instead.
	pages, err := api.PageCountFile(path)
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("placeholder verification failed: %w", err)
	}
	if pages < 1 {
		os.Remove(path)
		return "", fmt.Errorf("placeholder verification failed: %w", ErrZeroPage)
	}

	log.Debug().Str("label", label).Str("file", path).Msg("placeholder created")
	return path, nil
}
