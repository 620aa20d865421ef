package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/gcp"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/reconcile"
)

// Batch response statuses.
const (
	BatchStatusSuccess   = "success"
	BatchStatusPartial   = "partial"
	BatchStatusCancelled = "cancelled"
)

// ErrInvalidRequest marks request errors the caller can fix.
var ErrInvalidRequest = errors.New("invalid request")

// BatchFunction validates every supported object under a bucket prefix.
type BatchFunction struct {
	objects objectStore
	results resultStore
	coord   *pipeline.Coordinator
	config  Config
	closers []func() error
}

func NewBatch(ctx context.Context) (*BatchFunction, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	closers := []func() error{firestoreClient.Close}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, closeOnError(closers, fmt.Errorf("failed to create storage client: %w", err))
	}
	closers = append(closers, storageClient.Close)
	coord, closeCoord, err := NewCoordinator(ctx, config)
	if err != nil {
		return nil, closeOnError(closers, fmt.Errorf("failed to create validation pipeline: %w", err))
	}

	return &BatchFunction{
		objects: gcsObjects{client: storageClient},
		results: gcp.NewResultStore(firestoreClient, config.CollectionName),
		coord:   coord,
		config:  config,
		closers: append(closers, closeCoord),
	}, nil
}

// Process validates the objects named by req in name order. Persistence
// failures do not stop the batch; they turn the status into partial.
func (f *BatchFunction) Process(ctx context.Context, req *models.BatchRequest) (*models.BatchResponse, error) {
	if req.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidRequest)
	}
	tolerance := f.config.TolerancePercent
	if req.TolerancePercent != nil {
		tolerance = *req.TolerancePercent
	}
	if !reconcile.ValidTolerance(tolerance) {
		return nil, fmt.Errorf("%w: tolerancePercent must be within [0,100], got %v", ErrInvalidRequest, tolerance)
	}
	if req.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative", ErrInvalidRequest)
	}

	logCtx := slog.With("gcsBucket", req.Bucket, "prefix", req.Prefix)
	logCtx.Info("Starting batch validation.")

	docs, err := f.documents(ctx, req.Bucket, req.Prefix)
	if err != nil {
		logCtx.Error("Failed to list objects in source bucket", "error", err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	logCtx.Info("Found documents for validation.", "documentCount", len(docs))

	coord := f.coord
	if req.Workers > 0 {
		coord = coord.WithWorkers(req.Workers)
	}
	results, batchErr := coord.ProcessBatch(ctx, docs, tolerance, func(completed, total int) {
		logCtx.Info("Batch progress.", "completed", completed, "total", total)
	})

	sources := make(map[string]pipeline.Source, len(docs))
	for _, doc := range docs {
		sources[doc.Name] = doc.Source
	}
	status := BatchStatusSuccess
	for i := range results {
		// Persisting runs after cancellation too, so completed work is kept.
		if err := f.persist(context.WithoutCancel(ctx), logCtx, req.Bucket, sources[results[i].FileName], &results[i]); err != nil {
			status = BatchStatusPartial
		}
	}
	if batchErr != nil {
		logCtx.Warn("Batch stopped before all documents were processed.", "completed", len(results), "error", batchErr)
		status = BatchStatusCancelled
	}

	summary := models.Summarize(results)
	logCtx.Info("Batch validation complete.", "status", status, "validated", summary.Validated, "flagged", summary.Flagged,
		"discarded", summary.Discarded, "codeNotVisible", summary.CodeNotVisible)
	return &models.BatchResponse{Status: status, Results: results, Summary: summary}, nil
}

func (f *BatchFunction) documents(ctx context.Context, bucket, prefix string) ([]pipeline.Document, error) {
	objects, err := f.objects.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	docs := make([]pipeline.Document, 0, len(objects))
	for _, obj := range objects {
		mediaType := MediaTypeOf(obj.Name, obj.ContentType)
		if !pipeline.Supported(mediaType) {
			slog.Debug("Skipping unsupported object.", "gcsObject", obj.Name, "contentType", obj.ContentType)
			continue
		}
		name := obj.Name
		docs = append(docs, pipeline.Document{
			Source: pipeline.Source{Name: name, MediaType: mediaType},
			Open: func(ctx context.Context) ([]byte, error) {
				data, _, err := f.objects.Read(ctx, bucket, name)
				return data, err
			},
		})
	}
	return docs, nil
}

// persist stamps and uploads a validated document, then saves the result.
// Document bytes are not kept by the batch, so validated files are read again.
func (f *BatchFunction) persist(ctx context.Context, logCtx *slog.Logger, bucket string, src pipeline.Source, res *models.DocumentResult) error {
	logCtx = logCtx.With("gcsObject", src.Name, "resultId", res.ID, "status", res.Status)

	if res.Status == models.StatusValidated && f.config.ValidatedBucket != "" {
		data, _, err := f.objects.Read(ctx, bucket, src.Name)
		if err != nil {
			logCtx.Error("Failed to reload validated document", "error", err)
			return err
		}
		src.Data = data
		if err := publishValidated(ctx, f.objects, f.coord, f.config.ValidatedBucket, src, res); err != nil {
			logCtx.Error("Failed to publish validated document", "error", err)
			return err
		}
	}
	if err := f.results.Save(ctx, res); err != nil {
		logCtx.Error("Failed to save validation result", "error", err)
		return err
	}
	return nil
}

// Close releases the clients opened by NewBatch.
func (f *BatchFunction) Close() error {
	return closeAll(f.closers)
}
