package models

import "time"

// Status is the overall classification of a processed invoice.
type Status string

const (
	StatusValidated        Status = "VALIDATED"
	StatusFlaggedForReview Status = "FLAGGED_FOR_REVIEW"
	StatusDiscarded        Status = "DISCARDED"
	StatusCodeNotVisible   Status = "CODE_NOT_VISIBLE"
)

// NeedsReview reports whether a person has to look at the document.
func (s Status) NeedsReview() bool {
	return s == StatusFlaggedForReview || s == StatusCodeNotVisible
}

// StageStatus tracks the outcome of the recognition and decoding stages.
type StageStatus string

const (
	StageSuccess    StageStatus = "SUCCESS"
	StageFailed     StageStatus = "FAILED"
	StageNotFound   StageStatus = "NOT_FOUND"
	StageNotStarted StageStatus = "NOT_STARTED"
)

// Divergence fields.
const (
	FieldIssuerTaxID = "issuerTaxId"
	FieldTotal       = "total"
	FieldTechnical   = "technical"
)

// Divergence is one human-readable mismatch found while checking a document.
type Divergence struct {
	Field   string `json:"field" firestore:"field"`
	Message string `json:"message" firestore:"message"`
}

// DocumentResult is the record produced for each input document. It is
// stored in Firestore under its ID.
type DocumentResult struct {
	ID               string            `json:"id" firestore:"id"`
	FileName         string            `json:"fileName" firestore:"fileName"`
	OriginalName     string            `json:"originalName" firestore:"originalName"`
	FileHash         string            `json:"fileHash,omitempty" firestore:"fileHash,omitempty"`
	ProcessedAt      time.Time         `json:"processedAt" firestore:"processedAt"`
	Status           Status            `json:"status" firestore:"status"`
	OCRStatus        StageStatus       `json:"ocrStatus" firestore:"ocrStatus"`
	QRStatus         StageStatus       `json:"qrStatus" firestore:"qrStatus"`
	PageCount        int               `json:"pageCount,omitempty" firestore:"pageCount,omitempty"`
	CodePage         int               `json:"codePage,omitempty" firestore:"codePage,omitempty"`
	Code             *CodeFields       `json:"code,omitempty" firestore:"code,omitempty"`
	Recognized       *RecognizedFields `json:"recognized,omitempty" firestore:"recognized,omitempty"`
	Divergences      []Divergence      `json:"divergences" firestore:"divergences"`
	TolerancePercent float64           `json:"tolerancePercent" firestore:"tolerancePercent"`
	WithinTolerance  bool              `json:"withinTolerance" firestore:"withinTolerance"`
	OutputName       string            `json:"outputName,omitempty" firestore:"outputName,omitempty"`
}
