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
)

// ValidatorFunction validates each invoice uploaded to the inbox bucket.
type ValidatorFunction struct {
	objects objectStore
	results resultStore
	reviews reviewDispatcher
	coord   *pipeline.Coordinator
	config  Config
	closers []func() error
}

func NewValidator(ctx context.Context) (*ValidatorFunction, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if config.ValidatedBucket == "" {
		return nil, fmt.Errorf("VALIDATED_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	closers := []func() error{firestoreClient.Close}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, closeOnError(closers, fmt.Errorf("failed to create Storage client: %w", err))
	}
	closers = append(closers, storageClient.Close)
	coord, closeCoord, err := NewCoordinator(ctx, config)
	if err != nil {
		return nil, closeOnError(closers, fmt.Errorf("failed to create validation pipeline: %w", err))
	}
	closers = append(closers, closeCoord)

	f := &ValidatorFunction{
		objects: gcsObjects{client: storageClient},
		results: gcp.NewResultStore(firestoreClient, config.CollectionName),
		coord:   coord,
		config:  config,
	}
	if config.ReviewWorkflowID != "" {
		reviews, err := gcp.NewReviewDispatcher(ctx, config.ProjectID, config.WorkflowLocation, config.ReviewWorkflowID)
		if err != nil {
			return nil, closeOnError(closers, err)
		}
		f.reviews = reviews
		closers = append(closers, reviews.Close)
	}
	f.closers = closers
	slog.Info("Invoice validator initialized.",
		"recognizer", config.Recognizer,
		"tolerancePercent", config.TolerancePercent,
		"reviewWorkflowId", config.ReviewWorkflowID,
	)
	return f, nil
}

// Process validates one uploaded object. It returns a nil result when the
// object is skipped: unsupported type, an output of this pipeline, or a file
// already validated.
func (f *ValidatorFunction) Process(ctx context.Context, e models.GCSEvent) (*models.DocumentResult, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if e.Bucket == f.config.ValidatedBucket {
		logCtx.Info("Object is in the validated bucket. Skipping.")
		return nil, nil
	}
	mediaType := MediaTypeOf(e.Name, e.ContentType)
	if !pipeline.Supported(mediaType) {
		logCtx.Info("Unsupported content type. Skipping.", "contentType", e.ContentType)
		return nil, nil
	}
	logCtx.Info("Processing new GCS object.", "mediaType", mediaType)

	data, _, err := f.objects.Read(ctx, e.Bucket, e.Name)
	if err != nil {
		return nil, f.handleError(logCtx, "failed to download source document", err)
	}

	fileHash := pipeline.FileHash(data)
	logCtx = logCtx.With("fileHash", fileHash)
	existingID, isDuplicate, err := f.results.FindByHash(ctx, fileHash)
	if err != nil {
		return nil, f.handleError(logCtx, "failed to check for duplicate", err)
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingResultId", existingID)
		return nil, nil
	}

	src := pipeline.Source{Name: e.Name, MediaType: mediaType, Data: data}
	res, err := f.coord.ProcessDocument(ctx, src, f.config.TolerancePercent)
	if err != nil {
		return nil, f.handleError(logCtx, "failed to validate document", err)
	}
	logCtx = logCtx.With("resultId", res.ID, "status", res.Status)

	if err := publishValidated(ctx, f.objects, f.coord, f.config.ValidatedBucket, src, &res); err != nil {
		return &res, f.handleError(logCtx, "failed to publish validated document", err)
	}
	if err := f.results.Save(ctx, &res); err != nil {
		return &res, f.handleError(logCtx, "failed to save validation result", err)
	}
	if err := f.requestReview(ctx, logCtx, &res, gcp.ObjectURI(e.Bucket, e.Name)); err != nil {
		return &res, err
	}

	logCtx.Info("Validation complete.", "divergences", len(res.Divergences), "outputName", res.OutputName)
	return &res, nil
}

func (f *ValidatorFunction) requestReview(ctx context.Context, logCtx *slog.Logger, res *models.DocumentResult, sourceURI string) error {
	if f.reviews == nil || !res.Status.NeedsReview() {
		return nil
	}
	execution, err := f.reviews.Dispatch(ctx, reviewRequest(res, sourceURI))
	if err != nil {
		return f.handleError(logCtx, "failed to trigger review workflow", err)
	}
	logCtx.Info("Review workflow started.", "execution", execution)
	return nil
}

func (f *ValidatorFunction) handleError(logCtx *slog.Logger, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	return fmt.Errorf("%s: %w", message, originalErr)
}

// Close releases the clients opened by NewValidator.
func (f *ValidatorFunction) Close() error {
	return closeAll(f.closers)
}

// closeAll runs closers in reverse order of acquisition.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i]())
	}
	return errors.Join(errs...)
}

// closeOnError releases what a constructor acquired before err and returns
// err, with any close failures joined.
func closeOnError(closers []func() error, err error) error {
	if closeErr := closeAll(closers); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}
