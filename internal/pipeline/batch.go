package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/reconcile"
)

// Document is a batch entry. When Data is empty and Open is set, the bytes
// are loaded just before the document is processed and dropped afterwards.
type Document struct {
	Source
	Open func(ctx context.Context) ([]byte, error)
}

// ProgressFunc is called after each document with the number of completed
// documents and the batch size.
type ProgressFunc func(completed, total int)

// ProcessBatch validates docs and returns one result per document in input
// order. Cancellation is checked between documents: a document already
// started runs to completion, and the results completed so far are returned
// together with the context error.
func (c *Coordinator) ProcessBatch(ctx context.Context, docs []Document, tolerancePercent float64, progress ProgressFunc) ([]models.DocumentResult, error) {
	if !reconcile.ValidTolerance(tolerancePercent) {
		return nil, fmt.Errorf("tolerance %v is outside [0,100]", tolerancePercent)
	}
	if progress == nil {
		progress = func(int, int) {}
	}
	c.log.Info("Starting batch.", "documents", len(docs), "workers", c.cfg.Workers, "tolerancePercent", tolerancePercent)

	if c.cfg.Workers > 1 {
		return c.processConcurrently(ctx, docs, tolerancePercent, progress)
	}

	results := make([]models.DocumentResult, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			c.log.Warn("Batch cancelled.", "completed", len(results), "total", len(docs))
			return results, err
		}
		results = append(results, c.processEntry(ctx, doc, tolerancePercent))
		progress(i+1, len(docs))
	}
	return results, nil
}

// processConcurrently runs up to Workers documents at a time. Stages within
// a document stay sequential and results keep input order. Cancellation stops
// further launches.
func (c *Coordinator) processConcurrently(ctx context.Context, docs []Document, tolerancePercent float64, progress ProgressFunc) ([]models.DocumentResult, error) {
	slots := make([]*models.DocumentResult, len(docs))
	var (
		mu        sync.Mutex
		completed int
		eg        errgroup.Group
	)
	eg.SetLimit(c.cfg.Workers)

	for i, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		// A launched document always runs to completion, and launches follow
		// input order, so the completed set is a prefix of docs.
		eg.Go(func() error {
			res := c.processEntry(ctx, doc, tolerancePercent)

			mu.Lock()
			defer mu.Unlock()
			slots[i] = &res
			completed++
			progress(completed, len(docs))
			return nil
		})
	}
	_ = eg.Wait()

	results := make([]models.DocumentResult, 0, len(docs))
	for _, res := range slots {
		if res != nil {
			results = append(results, *res)
		}
	}
	if err := ctx.Err(); err != nil {
		c.log.Warn("Batch cancelled.", "completed", len(results), "total", len(docs))
		return results, err
	}
	return results, nil
}

// processEntry loads a lazy document and processes it with a context that
// is not cancelled by the batch, so a started document always completes.
func (c *Coordinator) processEntry(ctx context.Context, doc Document, tolerancePercent float64) models.DocumentResult {
	ctx = context.WithoutCancel(ctx)
	src := doc.Source
	if len(src.Data) == 0 && doc.Open != nil {
		data, err := doc.Open(ctx)
		if err != nil {
			return c.loadFailure(src, tolerancePercent, err)
		}
		src.Data = data
	}
	return c.process(ctx, src, tolerancePercent)
}

func (c *Coordinator) loadFailure(src Source, tolerancePercent float64, err error) models.DocumentResult {
	r := &run{
		c:     c,
		src:   src,
		log:   c.log.With("document", src.Name),
		stage: StageNotStarted,
		res: models.DocumentResult{
			ID:               c.cfg.NewID(),
			FileName:         src.Name,
			OriginalName:     src.Name,
			ProcessedAt:      c.cfg.Now().UTC(),
			OCRStatus:        models.StageNotStarted,
			QRStatus:         models.StageNotStarted,
			TolerancePercent: tolerancePercent,
		},
	}
	r.fail(fmt.Errorf("load document: %w", err))
	return r.finish()
}
