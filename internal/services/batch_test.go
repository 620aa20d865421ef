package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

func newBatchHarness(t *testing.T) (*BatchFunction, *fakeObjects, *fakeResults) {
	objects := newFakeObjects()
	objects.put("inbox", "march/a-good.pdf", "application/pdf", goodPDF)
	objects.put("inbox", "march/b-off.pdf", "application/pdf", offPDF)
	objects.put("inbox", "march/c-scan.png", "image/png", noQRPNG)
	objects.put("inbox", "march/notes.txt", "text/plain", "hello")
	objects.put("inbox", "april/d-good.pdf", "application/pdf", goodPDF)
	results := &fakeResults{hashes: map[string]string{}}

	return &BatchFunction{
		objects: objects,
		results: results,
		coord:   testCoordinator(t),
		config:  testConfig(),
	}, objects, results
}

func TestBatchProcess(t *testing.T) {
	f, objects, results := newBatchHarness(t)

	resp, err := f.Process(context.Background(), &models.BatchRequest{Bucket: "inbox", Prefix: "march/"})
	require.NoError(t, err)

	assert.Equal(t, BatchStatusSuccess, resp.Status)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "march/a-good.pdf", resp.Results[0].FileName)
	assert.Equal(t, models.StatusValidated, resp.Results[0].Status)
	assert.Equal(t, "march/b-off.pdf", resp.Results[1].FileName)
	assert.Equal(t, models.StatusFlaggedForReview, resp.Results[1].Status)
	assert.Equal(t, "march/c-scan.png", resp.Results[2].FileName)
	assert.Equal(t, models.StatusCodeNotVisible, resp.Results[2].Status)

	assert.Equal(t, models.Summary{Total: 3, Validated: 1, Flagged: 1, CodeNotVisible: 1}, resp.Summary)
	assert.Len(t, results.saved, 3)
	require.Len(t, objects.saved, 1)
	assert.Equal(t, goodPDF+"|stamped", string(objects.saved["validated/march/a-good_OK.pdf"].data))
	assert.NotContains(t, objects.reads, "march/notes.txt")
}

func TestBatchToleranceOverride(t *testing.T) {
	f, _, _ := newBatchHarness(t)
	tolerance := 60.0

	resp, err := f.Process(context.Background(), &models.BatchRequest{Bucket: "inbox", Prefix: "march/b", TolerancePercent: &tolerance, Workers: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.StatusValidated, resp.Results[0].Status)
	assert.Equal(t, 60.0, resp.Results[0].TolerancePercent)
}

func TestBatchInvalidRequest(t *testing.T) {
	f, _, _ := newBatchHarness(t)
	tooHigh := 150.0

	for _, req := range []*models.BatchRequest{
		{},
		{Bucket: "inbox", TolerancePercent: &tooHigh},
		{Bucket: "inbox", Workers: -1},
	} {
		_, err := f.Process(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestBatchPersistFailureIsPartial(t *testing.T) {
	f, _, results := newBatchHarness(t)
	results.saveErr = errBoom

	resp, err := f.Process(context.Background(), &models.BatchRequest{Bucket: "inbox", Prefix: "april/"})
	require.NoError(t, err)
	assert.Equal(t, BatchStatusPartial, resp.Status)
	assert.Len(t, resp.Results, 1)
}

func TestBatchCancelled(t *testing.T) {
	f, _, results := newBatchHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.Process(ctx, &models.BatchRequest{Bucket: "inbox", Prefix: "march/"})
	require.NoError(t, err)
	assert.Equal(t, BatchStatusCancelled, resp.Status)
	assert.Empty(t, resp.Results)
	assert.Empty(t, results.saved)
}
