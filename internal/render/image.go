// Package render turns invoice sources into rasters for OCR and QR decoding.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

// Image renders single-page raster sources (PNG, JPEG, GIF, BMP, TIFF,
// WebP).
type Image struct{}

func (Image) PageCount(context.Context, pipeline.Source) (int, error) { return 1, nil }

func (Image) Render(_ context.Context, src pipeline.Source, page int, scale float64) (image.Image, error) {
	if page != 1 {
		return nil, fmt.Errorf("image %s has a single page, got page %d", src.Name, page)
	}
	img, format, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", src.Name, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image %s (%s) is empty", src.Name, format)
	}
	return Scale(img, scale), nil
}

// Scale resizes img by factor using Catmull-Rom resampling. Factors of 1 or
// below zero return img unchanged.
func Scale(img image.Image, factor float64) image.Image {
	if factor <= 0 || factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
