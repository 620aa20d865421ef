package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// ResultStore persists validation results, one document per result id.
type ResultStore struct {
	client     *firestore.Client
	collection string
}

func NewResultStore(client *firestore.Client, collection string) *ResultStore {
	return &ResultStore{client: client, collection: collection}
}

// Save writes res under its id, replacing any previous version.
func (s *ResultStore) Save(ctx context.Context, res *models.DocumentResult) error {
	if res.ID == "" {
		return fmt.Errorf("result for %s has no id", res.FileName)
	}
	if _, err := s.client.Collection(s.collection).Doc(res.ID).Set(ctx, res); err != nil {
		return fmt.Errorf("failed to save result %s: %w", res.ID, err)
	}
	return nil
}

// FindByHash returns the id of a stored result for the same file contents.
func (s *ResultStore) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := s.client.Collection(s.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, true, nil
	}
	return "", false, nil
}

func (s *ResultStore) Close() error {
	return s.client.Close()
}
