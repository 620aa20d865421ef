// Package pipeline runs invoice documents through rendering, text
// recognition, QR decoding and reconciliation, producing one
// models.DocumentResult per document.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/qrpayload"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/reconcile"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/textfields"
)

// Defaults applied by New.
const (
	DefaultPDFScale     = 2.0
	DefaultImageScale   = 1.0
	DefaultLanguageHint = "por"
	DefaultOutputSuffix = "_OK"
)

// Config wires the collaborators of a Coordinator.
type Config struct {
	Renderer    Renderer
	Decoder     CodeDecoder
	Recognizers RecognizerFactory
	// Metadata is optional; without it Stamp returns documents unchanged.
	Metadata  MetadataWriter
	Extractor *textfields.Extractor
	Logger    *slog.Logger

	PDFScale     float64
	ImageScale   float64
	LanguageHint string
	OutputSuffix string
	// Workers above 1 lets ProcessBatch run that many documents at once.
	Workers int

	Now   func() time.Time
	NewID func() string
}

// Coordinator holds no state between documents; it is safe to share.
type Coordinator struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Renderer == nil || cfg.Decoder == nil || cfg.Recognizers == nil {
		return nil, errors.New("pipeline: renderer, decoder and recognizer factory are required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = textfields.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PDFScale <= 0 {
		cfg.PDFScale = DefaultPDFScale
	}
	if cfg.ImageScale <= 0 {
		cfg.ImageScale = DefaultImageScale
	}
	if cfg.LanguageHint == "" {
		cfg.LanguageHint = DefaultLanguageHint
	}
	if cfg.OutputSuffix == "" {
		cfg.OutputSuffix = DefaultOutputSuffix
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Coordinator{cfg: cfg, log: cfg.Logger}, nil
}

// WithWorkers returns a coordinator sharing c's collaborators that runs
// batches with n workers.
func (c *Coordinator) WithWorkers(n int) *Coordinator {
	cfg := c.cfg
	cfg.Workers = max(1, n)
	return &Coordinator{cfg: cfg, log: c.log}
}

// ProcessDocument validates a single document. The error is only non-nil for
// a tolerance outside [0,100]; collaborator failures are reported in the
// result as DISCARDED.
func (c *Coordinator) ProcessDocument(ctx context.Context, src Source, tolerancePercent float64) (models.DocumentResult, error) {
	if !reconcile.ValidTolerance(tolerancePercent) {
		return models.DocumentResult{}, fmt.Errorf("tolerance %v is outside [0,100]", tolerancePercent)
	}
	return c.process(ctx, src, tolerancePercent), nil
}

// Stamp returns the bytes to publish for a processed document: the metadata
// writer's output for VALIDATED documents, the original bytes otherwise or
// when the writer fails. The result is not modified.
func (c *Coordinator) Stamp(ctx context.Context, src Source, res *models.DocumentResult) []byte {
	if res.Status != models.StatusValidated || c.cfg.Metadata == nil {
		return src.Data
	}
	src = withMediaType(src)
	out, err := c.cfg.Metadata.Write(ctx, src.Data, src.MediaType, res)
	if err != nil {
		c.log.Warn("Failed to write validation metadata, keeping original bytes.", "document", src.Name, "error", err)
		return src.Data
	}
	return out
}

// OutputName appends suffix to the base name, keeping the extension.
func OutputName(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + suffix + ext
}

// FileHash is the hex SHA-256 of a document, used to detect duplicates.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func withMediaType(src Source) Source {
	if src.MediaType == "" && len(src.Data) > 0 {
		mt := http.DetectContentType(src.Data)
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		src.MediaType = mt
	}
	return src
}

type rasterPage struct {
	number int
	img    image.Image
}

// run is the state of one document. It is owned by a single goroutine.
type run struct {
	c         *Coordinator
	src       Source
	tolerance float64
	log       *slog.Logger

	stage Stage
	pages []rasterPage
	err   error
	res    models.DocumentResult
}

func (c *Coordinator) process(ctx context.Context, src Source, tolerance float64) models.DocumentResult {
	src = withMediaType(src)
	id := c.cfg.NewID()
	r := &run{
		c:         c,
		src:       src,
		tolerance: tolerance,
		log:       c.log.With("document", src.Name, "resultId", id),
		stage:     StageNotStarted,
		res: models.DocumentResult{
			ID:               id,
			FileName:         src.Name,
			OriginalName:     src.Name,
			FileHash:         FileHash(src.Data),
			ProcessedAt:      c.cfg.Now().UTC(),
			OCRStatus:        models.StageNotStarted,
			QRStatus:         models.StageNotStarted,
			TolerancePercent: tolerance,
			Divergences:      []models.Divergence{},
		},
	}
	r.execute(ctx)
	return r.finish()
}

func (r *run) execute(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic during %s: %v", r.stage, p))
		}
	}()

	handlers := map[Stage]func(context.Context) (Stage, error){
		StageRendering:   r.render,
		StageExtracting:  r.extract,
		StageScanning:    r.scan,
		StageReconciling: r.reconcile,
	}

	next := StageRendering
	for {
		if !r.stage.CanTransition(next) {
			r.fail(fmt.Errorf("illegal transition %s -> %s", r.stage, next))
			return
		}
		r.log.Debug("Stage transition.", "from", r.stage.String(), "to", next.String())
		r.stage = next
		if r.stage.Terminal() {
			return
		}

		var err error
		next, err = handlers[r.stage](ctx)
		if err != nil {
			r.fail(err)
			return
		}
	}
}

func (r *run) fail(err error) {
	r.err = err
	r.stage = StageFailed
	r.pages = nil
}

func (r *run) finish() models.DocumentResult {
	r.pages = nil
	if r.stage == StageFailed {
		r.log.Error("Document discarded after a technical failure.", "error", r.err)
		r.res.Status = models.StatusDiscarded
		r.res.WithinTolerance = false
		r.res.OutputName = ""
		r.res.Divergences = []models.Divergence{{
			Field:   models.FieldTechnical,
			Message: fmt.Sprintf("technical error while processing the file: %v", r.err),
		}}
		return r.res
	}
	r.log.Info("Document processed.", "status", r.res.Status, "divergences", len(r.res.Divergences))
	return r.res
}

// render rasterizes page 1 and, for multi-page documents, the last page.
func (r *run) render(ctx context.Context) (Stage, error) {
	renderer := r.c.cfg.Renderer
	count, scale := 1, r.c.cfg.ImageScale
	if r.src.IsPDF() {
		scale = r.c.cfg.PDFScale
		n, err := renderer.PageCount(ctx, r.src)
		if err != nil {
			return StageFailed, asRenderError(0, err)
		}
		count = n
	}
	if count < 1 {
		return StageFailed, &RenderError{Err: errors.New("document has no pages")}
	}
	r.res.PageCount = count

	for _, n := range candidatePages(count) {
		img, err := renderer.Render(ctx, r.src, n, scale)
		if err != nil {
			return StageFailed, asRenderError(n, err)
		}
		r.pages = append(r.pages, rasterPage{number: n, img: img})
	}
	return StageExtracting, nil
}

func candidatePages(count int) []int {
	if count > 1 {
		return []int{1, count}
	}
	return []int{1}
}

func asRenderError(page int, err error) error {
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	return &RenderError{Page: page, Err: err}
}

// extract runs OCR on page 1 only. The recognizer lives for this stage alone
// and is released before the stage returns. Any recognizer failure aborts the
// document.
func (r *run) extract(ctx context.Context) (Stage, error) {
	rec, err := r.c.cfg.Recognizers.NewRecognizer(ctx)
	if err != nil {
		r.res.OCRStatus = models.StageFailed
		return StageFailed, &RecognitionError{Err: err}
	}
	text, err := rec.Recognize(ctx, r.pages[0].img, r.c.cfg.LanguageHint)
	if cerr := rec.Close(); cerr != nil {
		r.log.Warn("Failed to release text recognizer.", "error", cerr)
	}
	if err != nil {
		r.res.OCRStatus = models.StageFailed
		return StageFailed, &RecognitionError{Err: err}
	}

	r.res.Recognized = r.c.cfg.Extractor.Extract(text)
	r.res.OCRStatus = models.StageSuccess
	return StageScanning, nil
}

// scan tries each rendered page in order and stops at the first QR payload
// that parses. Without one the document is CODE_NOT_VISIBLE and
// reconciliation is skipped.
func (r *run) scan(ctx context.Context) (Stage, error) {
	pages := r.pages
	r.pages = nil

	for _, p := range pages {
		text, found, err := r.c.cfg.Decoder.Decode(ctx, p.img)
		if err != nil {
			r.log.Warn("QR decoding failed on page.", "page", p.number, "error", err)
			continue
		}
		if !found {
			r.log.Debug("No QR code on page.", "page", p.number)
			continue
		}
		fields, ok := qrpayload.Parse(text)
		if !ok {
			r.log.Info("QR code found but payload lacks required fields.", "page", p.number)
			continue
		}
		r.res.Code = fields
		r.res.CodePage = p.number
		r.res.QRStatus = models.StageSuccess
		return StageReconciling, nil
	}

	r.res.QRStatus = models.StageNotFound
	r.res.Status = models.StatusCodeNotVisible
	return StageDone, nil
}

func (r *run) reconcile(_ context.Context) (Stage, error) {
	if r.res.Recognized == nil {
		r.res.Status = models.StatusFlaggedForReview
		r.res.Divergences = append(r.res.Divergences, reconcile.TotalNotDetected())
		return StageDone, nil
	}

	out := reconcile.Reconcile(r.res.Code, r.res.Recognized, r.tolerance)
	r.res.Status = out.Status
	r.res.WithinTolerance = out.WithinTolerance
	if len(out.Divergences) > 0 {
		r.res.Divergences = out.Divergences
	}
	if out.Status == models.StatusValidated {
		r.res.OutputName = OutputName(r.src.Name, r.c.cfg.OutputSuffix)
	}
	return StageDone, nil
}
