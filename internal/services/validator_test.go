package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

type validatorHarness struct {
	f       *ValidatorFunction
	objects *fakeObjects
	results *fakeResults
	reviews *fakeReviews
}

func newValidatorHarness(t *testing.T) *validatorHarness {
	h := &validatorHarness{
		objects: newFakeObjects(),
		results: &fakeResults{hashes: map[string]string{}},
		reviews: &fakeReviews{},
	}
	h.objects.put("inbox", "2024/good.pdf", "application/pdf", goodPDF)
	h.objects.put("inbox", "2024/off.pdf", "application/pdf", offPDF)
	h.objects.put("inbox", "scan.png", "", noQRPNG)
	h.f = &ValidatorFunction{
		objects: h.objects,
		results: h.results,
		reviews: h.reviews,
		coord:   testCoordinator(t),
		config:  testConfig(),
	}
	return h
}

func TestValidatorPublishesValidated(t *testing.T) {
	h := newValidatorHarness(t)

	res, err := h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "2024/good.pdf", ContentType: "application/pdf"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, models.StatusValidated, res.Status)
	assert.Equal(t, "2024/good_OK.pdf", res.OutputName)

	published, ok := h.objects.saved["validated/2024/good_OK.pdf"]
	require.True(t, ok)
	assert.Equal(t, goodPDF+"|stamped", string(published.data))
	assert.Equal(t, "application/pdf", published.contentType)

	require.Len(t, h.results.saved, 1)
	assert.Equal(t, res.ID, h.results.saved[0].ID)
	assert.Equal(t, pipeline.FileHash([]byte(goodPDF)), h.results.saved[0].FileHash)
	assert.Empty(t, h.reviews.requests)
}

func TestValidatorRequestsReviewForFlagged(t *testing.T) {
	h := newValidatorHarness(t)

	res, err := h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "2024/off.pdf", ContentType: "application/pdf"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, models.StatusFlaggedForReview, res.Status)
	assert.Empty(t, h.objects.saved)
	require.Len(t, h.results.saved, 1)
	require.Len(t, h.reviews.requests, 1)
	assert.Equal(t, models.ReviewRequest{
		ResultID:     res.ID,
		OriginalName: "2024/off.pdf",
		Status:       models.StatusFlaggedForReview,
		SourceURI:    "gs://inbox/2024/off.pdf",
	}, h.reviews.requests[0])
}

func TestValidatorCodeNotVisibleInferredImage(t *testing.T) {
	h := newValidatorHarness(t)

	res, err := h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "scan.png"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, models.StatusCodeNotVisible, res.Status)
	assert.Len(t, h.reviews.requests, 1)
}

func TestValidatorWithoutReviewWorkflow(t *testing.T) {
	h := newValidatorHarness(t)
	h.f.reviews = nil

	res, err := h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "2024/off.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlaggedForReview, res.Status)
	assert.Empty(t, h.reviews.requests)
}

func TestValidatorSkips(t *testing.T) {
	tests := []struct {
		name  string
		event models.GCSEvent
		setup func(h *validatorHarness)
	}{
		{"unsupported type", models.GCSEvent{Bucket: "inbox", Name: "notes.txt", ContentType: "text/plain"}, nil},
		{"validated bucket", models.GCSEvent{Bucket: "validated", Name: "2024/good_OK.pdf", ContentType: "application/pdf"}, nil},
		{"duplicate", models.GCSEvent{Bucket: "inbox", Name: "2024/good.pdf", ContentType: "application/pdf"}, func(h *validatorHarness) {
			h.results.hashes[pipeline.FileHash([]byte(goodPDF))] = "earlier"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newValidatorHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			res, err := h.f.Process(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Nil(t, res)
			assert.Empty(t, h.results.saved)
			assert.Empty(t, h.objects.saved)
		})
	}
}

func TestValidatorErrors(t *testing.T) {
	h := newValidatorHarness(t)
	h.objects.readErr = errBoom
	_, err := h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "2024/good.pdf"})
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "failed to download source document")

	h = newValidatorHarness(t)
	h.results.saveErr = errBoom
	res, err := h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "2024/good.pdf"})
	assert.ErrorIs(t, err, errBoom)
	require.NotNil(t, res)
	assert.Equal(t, models.StatusValidated, res.Status)

	h = newValidatorHarness(t)
	h.reviews.err = errBoom
	_, err = h.f.Process(context.Background(), models.GCSEvent{Bucket: "inbox", Name: "2024/off.pdf"})
	assert.ErrorIs(t, err, errBoom)
}

func TestMediaTypeOf(t *testing.T) {
	tests := []struct {
		name, contentType, want string
	}{
		{"a.pdf", "", "application/pdf"},
		{"a.PNG", "application/octet-stream", "image/png"},
		{"a.bin", "", ""},
		{"x", "image/jpeg; charset=binary", "image/jpeg"},
		{"x.pdf", "text/plain", "text/plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MediaTypeOf(tt.name, tt.contentType), tt.name)
	}
}

func TestCloseAllReleasesInReverseOrder(t *testing.T) {
	var order []string
	closer := func(name string, err error) func() error {
		return func() error {
			order = append(order, name)
			return err
		}
	}
	errStorage := errors.New("storage close failed")

	err := closeAll([]func() error{closer("firestore", nil), closer("storage", errStorage), closer("pipeline", nil)})
	assert.ErrorIs(t, err, errStorage)
	assert.Equal(t, []string{"pipeline", "storage", "firestore"}, order)

	assert.NoError(t, closeAll(nil))
}

func TestCloseOnErrorReleasesAcquiredClients(t *testing.T) {
	closed := 0
	closers := []func() error{
		func() error { closed++; return nil },
		func() error { closed++; return nil },
	}
	errCreate := errors.New("failed to create validation pipeline")

	err := closeOnError(closers, errCreate)
	assert.Same(t, errCreate, err)
	assert.Equal(t, 2, closed)

	errClose := errors.New("firestore close failed")
	err = closeOnError([]func() error{func() error { return errClose }}, errCreate)
	assert.ErrorIs(t, err, errCreate)
	assert.ErrorIs(t, err, errClose)
}
