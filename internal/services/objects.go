package services

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/gcp"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

// objectStore is the slice of Cloud Storage the functions use.
type objectStore interface {
	Read(ctx context.Context, bucket, name string) ([]byte, string, error)
	List(ctx context.Context, bucket, prefix string) ([]gcp.ObjectInfo, error)
	SaveAtomically(ctx context.Context, bucket, name string, data []byte, contentType string) error
}

type resultStore interface {
	Save(ctx context.Context, res *models.DocumentResult) error
	FindByHash(ctx context.Context, fileHash string) (string, bool, error)
}

type reviewDispatcher interface {
	Dispatch(ctx context.Context, req models.ReviewRequest) (string, error)
}

type gcsObjects struct {
	client *storage.Client
}

func (g gcsObjects) Read(ctx context.Context, bucket, name string) ([]byte, string, error) {
	return gcp.ReadObject(ctx, g.client.Bucket(bucket), name)
}

func (g gcsObjects) List(ctx context.Context, bucket, prefix string) ([]gcp.ObjectInfo, error) {
	return gcp.ListObjects(ctx, g.client.Bucket(bucket), prefix)
}

func (g gcsObjects) SaveAtomically(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	return gcp.Retry(ctx, name, gcp.UploadAttempts, gcp.UploadInitialBackoff, gcp.UploadAttemptTimeout, func(ctx context.Context) error {
		return gcp.SaveToGCSAtomically(ctx, g.client.Bucket(bucket), name, data, contentType)
	})
}

// MediaTypeOf prefers the stored content type and falls back to the
// extension when the object was uploaded without a useful one.
func MediaTypeOf(name, contentType string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	return ""
}

// publishValidated uploads the stamped copy of a VALIDATED document under its
// output name. Other statuses are not published.
func publishValidated(ctx context.Context, objects objectStore, coord *pipeline.Coordinator, bucket string, src pipeline.Source, res *models.DocumentResult) error {
	if res.Status != models.StatusValidated || bucket == "" {
		return nil
	}
	stamped := coord.Stamp(ctx, src, res)
	return objects.SaveAtomically(ctx, bucket, res.OutputName, stamped, src.MediaType)
}

// reviewRequest builds the workflow argument for a result needing review.
func reviewRequest(res *models.DocumentResult, sourceURI string) models.ReviewRequest {
	return models.ReviewRequest{
		ResultID:     res.ID,
		OriginalName: res.OriginalName,
		Status:       res.Status,
		SourceURI:    sourceURI,
	}
}
