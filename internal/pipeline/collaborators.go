package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

// Media types accepted as sources.
const (
	MediaTypePDF = "application/pdf"
	mediaImage   = "image/"
)

// Source is one input document.
type Source struct {
	Name      string
	MediaType string
	Data      []byte
}

// IsPDF reports whether the source is a PDF, by media type or extension.
func (s Source) IsPDF() bool {
	if s.MediaType != "" {
		return s.MediaType == MediaTypePDF
	}
	return strings.EqualFold(filepath.Ext(s.Name), ".pdf")
}

// Supported reports whether a media type can be validated.
func Supported(mediaType string) bool {
	return mediaType == MediaTypePDF || strings.HasPrefix(mediaType, mediaImage)
}

// Renderer turns a source page into pixels. Pages are 1-based; scale is a
// quality multiplier.
type Renderer interface {
	PageCount(ctx context.Context, src Source) (int, error)
	Render(ctx context.Context, src Source, page int, scale float64) (image.Image, error)
}

// CodeDecoder looks for a QR code in a raster. A missing code is reported as
// found=false with a nil error.
type CodeDecoder interface {
	Decode(ctx context.Context, img image.Image) (text string, found bool, err error)
}

// TextRecognizer runs OCR. An instance serves one document and is closed
// before the next document starts.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image, languageHint string) (string, error)
	Close() error
}

// RecognizerFactory acquires a TextRecognizer for one document.
type RecognizerFactory interface {
	NewRecognizer(ctx context.Context) (TextRecognizer, error)
}

// RecognizerFactoryFunc adapts a function to RecognizerFactory.
type RecognizerFactoryFunc func(ctx context.Context) (TextRecognizer, error)

func (f RecognizerFactoryFunc) NewRecognizer(ctx context.Context) (TextRecognizer, error) {
	return f(ctx)
}

// MetadataWriter stamps a validated document. On failure it returns the
// original bytes together with the error.
type MetadataWriter interface {
	Write(ctx context.Context, original []byte, mediaType string, res *models.DocumentResult) ([]byte, error)
}

// RenderError wraps a failure of the Renderer.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("render: %v", e.Err)
	}
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// RecognitionError wraps a failure of the TextRecognizer or its factory.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string { return fmt.Sprintf("recognize text: %v", e.Err) }

func (e *RecognitionError) Unwrap() error { return e.Err }
