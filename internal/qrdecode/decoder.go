// Package qrdecode finds QR codes in rendered pages.
package qrdecode

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder reads the first QR code visible in an image.
type Decoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// New returns a decoder that spends extra effort on low-quality scans.
func New() *Decoder {
	return &Decoder{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER:    true,
		gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
	}}
}

// Decode returns found=false with a nil error when no readable code is
// present. Other failures are returned as errors.
func (d *Decoder) Decode(ctx context.Context, img image.Image) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if img == nil || img.Bounds().Empty() {
		return "", false, nil
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false, fmt.Errorf("binarize image: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		var readerErr gozxing.ReaderException
		if errors.As(err, &readerErr) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("decode qr code: %w", err)
	}
	return result.GetText(), true, nil
}
