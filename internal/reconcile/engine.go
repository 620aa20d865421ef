// Package reconcile compares the facts decoded from an invoice QR code with
// the facts read from its visible text.
package reconcile

import (
	"fmt"
	"math"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

// DefaultTolerancePercent is the tolerance used when callers give none.
const DefaultTolerancePercent = 5.0

// Outcome is the classification of one code/text pair.
type Outcome struct {
	Status          models.Status
	Divergences     []models.Divergence
	WithinTolerance bool
}

// ValidTolerance reports whether p is a usable tolerance percentage.
func ValidTolerance(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

// ClampTolerance forces p into [0,100]. NaN becomes 0.
func ClampTolerance(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Reconcile classifies a document. The issuer tax id must match exactly at
// any tolerance. The recognized total may differ from the code total by at
// most tolerancePercent of the code total; a difference equal to the margin
// still matches.
func Reconcile(code *models.CodeFields, rec *models.RecognizedFields, tolerancePercent float64) Outcome {
	tolerance := ClampTolerance(tolerancePercent)
	var divergences []models.Divergence

	if rec.IssuerTaxID == nil || *rec.IssuerTaxID != code.IssuerTaxID {
		divergences = append(divergences, models.Divergence{
			Field:   models.FieldIssuerTaxID,
			Message: fmt.Sprintf("issuer tax id: code=%s, recognized=%s", code.IssuerTaxID, valueOrNotDetected(rec.IssuerTaxID)),
		})
	}

	within := false
	switch {
	case !code.HasValidTotal():
		divergences = append(divergences, models.Divergence{
			Field:   models.FieldTotal,
			Message: fmt.Sprintf("total: code value %q is not a valid number", code.TotalRaw),
		})
	case rec.TotalWithTaxes == nil:
		divergences = append(divergences, TotalNotDetected())
	default:
		codeCents := toCents(code.TotalWithTaxes)
		recognizedCents := toCents(*rec.TotalWithTaxes)
		diffCents := abs(codeCents - recognizedCents)

		if exceedsMargin(diffCents, abs(codeCents), tolerance) {
			margin := float64(abs(codeCents)) * tolerance / 100 / 100
			divergences = append(divergences, models.Divergence{
				Field: models.FieldTotal,
				Message: fmt.Sprintf("total: code=%.2f, recognized=%.2f, difference=%.2f exceeds margin=%.2f (%g%%)",
					fromCents(codeCents), fromCents(recognizedCents), fromCents(diffCents), margin, tolerance),
			})
		} else {
			within = true
		}
	}

	status := models.StatusValidated
	if len(divergences) > 0 {
		status = models.StatusFlaggedForReview
	}
	return Outcome{Status: status, Divergences: divergences, WithinTolerance: within}
}

// TotalNotDetected is the divergence recorded when no total was read from the
// document text.
func TotalNotDetected() models.Divergence {
	return models.Divergence{Field: models.FieldTotal, Message: "total: not detected in the document text"}
}

// marginEpsilon absorbs float noise, in cents, for fractional tolerances.
const marginEpsilon = 1e-6

// exceedsMargin reports diffCents > baseCents*tolerance/100. Whole-number
// tolerances are compared exactly in integers.
func exceedsMargin(diffCents, baseCents int64, tolerance float64) bool {
	if tolerance == math.Trunc(tolerance) {
		return diffCents*100 > baseCents*int64(tolerance)
	}
	return float64(diffCents) > float64(baseCents)*tolerance/100+marginEpsilon
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

func abs(c int64) int64 {
	if c < 0 {
		return -c
	}
	return c
}

func valueOrNotDetected(s *string) string {
	if s == nil {
		return "not detected"
	}
	return *s
}
