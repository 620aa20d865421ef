package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

// pointsPerInch is the PDF user-space resolution; scale 1 renders at 72 DPI.
const pointsPerInch = 72

// ErrNoRaster is returned when a page cannot be rasterized: pdftoppm is not
// available and the page embeds no decodable image.
var ErrNoRaster = errors.New("page has no raster content")

// PDF renders PDF pages. Pages are rasterized with poppler's pdftoppm when it
// is installed; otherwise the largest image embedded in the page is used,
// which covers scanned invoices.
type PDF struct {
	pdftoppm string
	conf     *model.Configuration
}

// NewPDF looks up the pdftoppm binary. An empty path or a binary that cannot
// be found leaves only the embedded-image fallback.
func NewPDF(pdftoppmPath string) *PDF {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	p := &PDF{conf: conf}
	if pdftoppmPath != "" {
		if path, err := exec.LookPath(pdftoppmPath); err == nil {
			p.pdftoppm = path
		} else {
			slog.Warn("pdftoppm not found, PDF rendering limited to embedded page images.", "path", pdftoppmPath, "error", err)
		}
	}
	return p
}

func (p *PDF) PageCount(_ context.Context, src pipeline.Source) (int, error) {
	n, err := api.PageCount(bytes.NewReader(src.Data), p.conf)
	if err != nil {
		return 0, fmt.Errorf("read page count of %s: %w", src.Name, err)
	}
	return n, nil
}

func (p *PDF) Render(ctx context.Context, src pipeline.Source, page int, scale float64) (image.Image, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}
	if p.pdftoppm != "" {
		return p.rasterize(ctx, src, page, scale)
	}
	return p.embeddedImage(src, page)
}

func (p *PDF) rasterize(ctx context.Context, src pipeline.Source, page int, scale float64) (image.Image, error) {
	if scale <= 0 {
		scale = 1
	}
	dpi := strconv.Itoa(int(pointsPerInch * scale))
	pageArg := strconv.Itoa(page)

	cmd := exec.CommandContext(ctx, p.pdftoppm, "-png", "-singlefile", "-r", dpi, "-f", pageArg, "-l", pageArg, "-")
	cmd.Stdin = bytes.NewReader(src.Data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm page %d of %s: %w: %s", page, src.Name, err, bytes.TrimSpace(stderr.Bytes()))
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode pdftoppm output for page %d of %s: %w", page, src.Name, err)
	}
	return img, nil
}

// embeddedImage returns the largest decodable image placed on page.
func (p *PDF) embeddedImage(src pipeline.Source, page int) (image.Image, error) {
	var (
		best     image.Image
		bestArea int
		lastErr  error
	)
	digest := func(img model.Image, _ bool, _ int) error {
		decoded, _, err := image.Decode(img)
		if err != nil {
			lastErr = fmt.Errorf("decode embedded image %s (%s): %w", img.Name, img.FileType, err)
			return nil
		}
		b := decoded.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = decoded, area
		}
		return nil
	}

	if err := api.ExtractImages(bytes.NewReader(src.Data), []string{strconv.Itoa(page)}, digest, p.conf); err != nil {
		return nil, fmt.Errorf("extract images from page %d of %s: %w", page, src.Name, err)
	}
	if best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("page %d of %s: %w: %v", page, src.Name, ErrNoRaster, lastErr)
		}
		return nil, fmt.Errorf("page %d of %s: %w", page, src.Name, ErrNoRaster)
	}
	return best, nil
}

// Document dispatches between the PDF and image renderers.
type Document struct {
	PDF   *PDF
	Image Image
}

// New returns a renderer for PDFs and images.
func New(pdftoppmPath string) *Document {
	return &Document{PDF: NewPDF(pdftoppmPath)}
}

func (d *Document) PageCount(ctx context.Context, src pipeline.Source) (int, error) {
	if src.IsPDF() {
		return d.PDF.PageCount(ctx, src)
	}
	return d.Image.PageCount(ctx, src)
}

func (d *Document) Render(ctx context.Context, src pipeline.Source, page int, scale float64) (image.Image, error) {
	if src.IsPDF() {
		return d.PDF.Render(ctx, src, page, scale)
	}
	return d.Image.Render(ctx, src, page, scale)
}
