// Package metadata stamps validated PDFs with the outcome of the check.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

// Document info keys written to stamped PDFs.
const (
	KeyStatus         = "QRValidationStatus"
	KeyValidatedAt    = "QRValidatedAt"
	KeyResultID       = "QRValidationID"
	KeyIssuerTaxID    = "QRIssuerTaxID"
	KeyDocumentNumber = "QRDocumentNumber"
	KeyUniqueCode     = "QRUniqueCode"
	KeyTolerance      = "QRTolerancePercent"
)

// PDFWriter adds custom document properties with pdfcpu. Images have no
// equivalent container and are returned unchanged.
type PDFWriter struct {
	conf *model.Configuration
}

func NewPDFWriter() *PDFWriter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFWriter{conf: conf}
}

func (w *PDFWriter) Write(ctx context.Context, original []byte, mediaType string, res *models.DocumentResult) ([]byte, error) {
	if mediaType != pipeline.MediaTypePDF {
		return original, nil
	}
	if err := ctx.Err(); err != nil {
		return original, err
	}

	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(original), &out, Properties(res), w.conf); err != nil {
		return original, fmt.Errorf("add properties: %w", err)
	}
	return out.Bytes(), nil
}

// Properties lists the values stamped for res. Empty values are left out.
func Properties(res *models.DocumentResult) map[string]string {
	props := map[string]string{
		KeyStatus:    string(res.Status),
		KeyResultID:  res.ID,
		KeyTolerance: fmt.Sprintf("%g", res.TolerancePercent),
	}
	if !res.ProcessedAt.IsZero() {
		props[KeyValidatedAt] = res.ProcessedAt.UTC().Format(time.RFC3339)
	}
	if res.Code != nil {
		props[KeyIssuerTaxID] = res.Code.IssuerTaxID
		props[KeyDocumentNumber] = res.Code.DocumentNumber
		props[KeyUniqueCode] = res.Code.UniqueCode
	}
	for k, v := range props {
		if v == "" {
			delete(props, k)
		}
	}
	return props
}
