package preview

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Suffix is appended to a QC document name to form its preview name.
const Suffix = ".preview.jpg"

const (
	DefaultDPI     = 96
	DefaultQuality = 80
)

// Renderer rasterizes the first page of QC documents to JPEG so a
// reviewer can eyeball a merged family without opening the PDF.
type Renderer struct {
	DPI     int
	Quality int
}

// New creates a renderer with default DPI and JPEG quality.
func New() *Renderer {
	return &Renderer{DPI: DefaultDPI, Quality: DefaultQuality}
}

// Render rasterizes the first page of the PDF at pdfPath and returns
// the JPEG bytes together with the rendered dimensions.
func (r *Renderer) Render(pdfPath string) ([]byte, int, int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, 0, 0, fmt.Errorf("pdf has no pages")
	}

	dpi := r.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	quality := r.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	img, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to render first page: %w", err)
	}

	bounds := img.Bounds()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("dpi", dpi).
		Int("quality", quality).
		Int("jpeg_size", buf.Len()).
		Str("file", pdfPath).
		Msg("rendered preview")

	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// Write renders the first page of pdfPath and writes the JPEG to outPath.
func (r *Renderer) Write(pdfPath, outPath string) error {
	data, _, _, err := r.Render(pdfPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}
