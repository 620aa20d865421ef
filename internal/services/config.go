package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/gcp"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/metadata"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/ocr"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/qrdecode"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/reconcile"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/render"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/textfields"
)

// Recognizer backends.
const (
	RecognizerTesseract = "tesseract"
	RecognizerVertex    = "vertex"
)

// Total selection heuristics.
const (
	TotalSelectorLast    = "last"
	TotalSelectorLargest = "largest"
)

// Config is shared by the validator functions and the local CLI.
type Config struct {
	ProjectID        string
	ValidatedBucket  string
	CollectionName   string
	TolerancePercent float64
	Recognizer       string
	TotalSelector    string
	VertexRegion     string
	VertexModel      string
	ReviewWorkflowID string
	WorkflowLocation string
	PdftoppmPath     string
	BatchWorkers     int
}

// LoadConfig reads the environment. Required values are checked by the
// constructors that need them.
func LoadConfig() (Config, error) {
	config := Config{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		ValidatedBucket:  gcp.GetEnv("VALIDATED_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "invoice_validations"),
		Recognizer:       strings.ToLower(gcp.GetEnv("RECOGNIZER", RecognizerTesseract)),
		TotalSelector:    strings.ToLower(gcp.GetEnv("TOTAL_SELECTOR", TotalSelectorLast)),
		VertexRegion:     gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:      gcp.GetEnv("VERTEX_MODEL", gcp.DefaultVertexModel),
		ReviewWorkflowID: gcp.GetEnv("REVIEW_WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		PdftoppmPath:     gcp.GetEnv("PDFTOPPM_PATH", "pdftoppm"),
	}

	tolerance, err := strconv.ParseFloat(gcp.GetEnv("TOLERANCE_PERCENT", "5"), 64)
	if err != nil {
		return Config{}, fmt.Errorf("TOLERANCE_PERCENT: %w", err)
	}
	config.TolerancePercent = tolerance

	workers, err := strconv.Atoi(gcp.GetEnv("BATCH_WORKERS", "1"))
	if err != nil {
		return Config{}, fmt.Errorf("BATCH_WORKERS: %w", err)
	}
	config.BatchWorkers = workers

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks values that may come from the environment or from flags.
func (c Config) Validate() error {
	if !reconcile.ValidTolerance(c.TolerancePercent) {
		return fmt.Errorf("tolerance must be within [0,100], got %v", c.TolerancePercent)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("batch workers must be a positive integer, got %d", c.BatchWorkers)
	}
	switch c.Recognizer {
	case RecognizerTesseract, RecognizerVertex:
	default:
		return fmt.Errorf("recognizer must be %q or %q, got %q", RecognizerTesseract, RecognizerVertex, c.Recognizer)
	}
	if _, err := totalSelector(c.TotalSelector); err != nil {
		return err
	}
	return nil
}

func totalSelector(name string) (textfields.TotalSelector, error) {
	switch name {
	case "", TotalSelectorLast:
		return textfields.LastAmount, nil
	case TotalSelectorLargest:
		return textfields.LargestAmount, nil
	}
	return nil, fmt.Errorf("total selector must be %q or %q, got %q", TotalSelectorLast, TotalSelectorLargest, name)
}

// ParseLogLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger returns the JSON logger used by every entry point.
func NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(gcp.GetEnv("LOG_LEVEL", "info"))}))
}

// NewCoordinator wires the production collaborators. The returned function
// releases clients opened for the recognizer.
func NewCoordinator(ctx context.Context, config Config) (*pipeline.Coordinator, func() error, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	selector, err := totalSelector(config.TotalSelector)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }
	var recognizers pipeline.RecognizerFactory
	switch config.Recognizer {
	case RecognizerVertex:
		vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexRegion, config.VertexModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		recognizers = ocr.NewVertex(vertexClient.TranscriptionModel, gcp.TranscriptionUserPrompt)
		closer = vertexClient.Close
	default:
		recognizers = ocr.NewTesseract()
	}

	coord, err := pipeline.New(pipeline.Config{
		Renderer:    render.New(config.PdftoppmPath),
		Decoder:     qrdecode.New(),
		Recognizers: recognizers,
		Metadata:    metadata.NewPDFWriter(),
		Extractor:   &textfields.Extractor{SelectTotal: selector, ExcerptLimit: textfields.DefaultExcerptLimit},
		Logger:      slog.Default(),
		Workers:     config.BatchWorkers,
	})
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return coord, closer, nil
}
