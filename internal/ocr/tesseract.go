// Package ocr provides the text recognizers used by the validation pipeline.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

// Tesseract acquires one gosseract client per document.
type Tesseract struct {
	clientFactory func() *gosseract.Client
	// DPI is passed to tesseract as user_defined_dpi when positive.
	DPI int
}

// NewTesseract constructs a Tesseract-backed recognizer factory.
func NewTesseract() *Tesseract {
	return &Tesseract{clientFactory: gosseract.NewClient}
}

func (t *Tesseract) NewRecognizer(ctx context.Context) (pipeline.TextRecognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := t.clientFactory()
	if c == nil {
		return nil, fmt.Errorf("tesseract client unavailable")
	}
	return &tesseractRecognizer{client: c, dpi: t.DPI}, nil
}

type tesseractRecognizer struct {
	client *gosseract.Client
	dpi    int
}

func (r *tesseractRecognizer) Recognize(ctx context.Context, img image.Image, languageHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}
	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if languageHint != "" {
		if err := r.client.SetLanguage(languageHint); err != nil {
			return "", fmt.Errorf("set language %s: %w", languageHint, err)
		}
	}
	if r.dpi > 0 {
		if err := r.client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(r.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (r *tesseractRecognizer) Close() error {
	return r.client.Close()
}
