package services

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/gcp"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
)

const (
	payload100 = "A:501234567*B:999999990*C:PT*D:FT*E:N*F:20240131*G:FT A/1*H:ABC-1*O:100.00"
	text100    = "Empresa NIF 501234567 IVA 18,70 Total 100,00"
	text150    = "Empresa NIF 501234567 Total 150,00"
)

var errBoom = errors.New("boom")

// Documents are told apart by their size: the fake renderer returns an image
// as wide as the document, and decoder and recognizer look the width up.
type docBehaviour struct {
	payload string
	text    string
}

type fakeCollaborators struct {
	byWidth map[int]docBehaviour
}

func (f *fakeCollaborators) PageCount(context.Context, pipeline.Source) (int, error) { return 1, nil }

func (f *fakeCollaborators) Render(_ context.Context, src pipeline.Source, _ int, _ float64) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, len(src.Data), 1)), nil
}

func (f *fakeCollaborators) Decode(_ context.Context, img image.Image) (string, bool, error) {
	b, ok := f.byWidth[img.Bounds().Dx()]
	if !ok || b.payload == "" {
		return "", false, nil
	}
	return b.payload, true, nil
}

func (f *fakeCollaborators) NewRecognizer(context.Context) (pipeline.TextRecognizer, error) {
	return f, nil
}

func (f *fakeCollaborators) Recognize(_ context.Context, img image.Image, _ string) (string, error) {
	return f.byWidth[img.Bounds().Dx()].text, nil
}

func (f *fakeCollaborators) Close() error { return nil }

func (f *fakeCollaborators) Write(_ context.Context, original []byte, _ string, _ *models.DocumentResult) ([]byte, error) {
	return append(append([]byte{}, original...), "|stamped"...), nil
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]storedObject
	saved   map[string]storedObject
	reads   []string
	readErr error
	saveErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]storedObject{}, saved: map[string]storedObject{}}
}

func (f *fakeObjects) put(bucket, name, contentType, data string) {
	f.objects[bucket+"/"+name] = storedObject{data: []byte(data), contentType: contentType}
}

func (f *fakeObjects) Read(_ context.Context, bucket, name string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, name)
	if f.readErr != nil {
		return nil, "", f.readErr
	}
	obj, ok := f.objects[bucket+"/"+name]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return obj.data, obj.contentType, nil
}

func (f *fakeObjects) List(_ context.Context, bucket, prefix string) ([]gcp.ObjectInfo, error) {
	var out []gcp.ObjectInfo
	for key, obj := range f.objects {
		name, ok := strings.CutPrefix(key, bucket+"/")
		if ok && strings.HasPrefix(name, prefix) {
			out = append(out, gcp.ObjectInfo{Name: name, ContentType: obj.contentType, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeObjects) SaveAtomically(_ context.Context, bucket, name string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[bucket+"/"+name] = storedObject{data: data, contentType: contentType}
	return nil
}

type fakeResults struct {
	mu      sync.Mutex
	saved   []models.DocumentResult
	hashes  map[string]string
	saveErr error
}

func (f *fakeResults) Save(_ context.Context, res *models.DocumentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *res)
	return nil
}

func (f *fakeResults) FindByHash(_ context.Context, hash string) (string, bool, error) {
	id, ok := f.hashes[hash]
	return id, ok, nil
}

type fakeReviews struct {
	requests []models.ReviewRequest
	err      error
}

func (f *fakeReviews) Dispatch(_ context.Context, req models.ReviewRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.requests = append(f.requests, req)
	return "executions/1", nil
}

// Source documents, distinguished by length.
const (
	goodPDF = "%PDF-good"
	offPDF  = "%PDF-total-off"
	noQRPNG = "PNGDATA"
)

func testCoordinator(t *testing.T) *pipeline.Coordinator {
	t.Helper()
	collab := &fakeCollaborators{byWidth: map[int]docBehaviour{
		len(goodPDF): {payload: payload100, text: text100},
		len(offPDF):  {payload: payload100, text: text150},
		len(noQRPNG): {text: text100},
	}}
	coord, err := pipeline.New(pipeline.Config{
		Renderer:    collab,
		Decoder:     collab,
		Recognizers: collab,
		Metadata:    collab,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return coord
}

func testConfig() Config {
	return Config{
		ProjectID:        "project",
		ValidatedBucket:  "validated",
		CollectionName:   "invoice_validations",
		TolerancePercent: 5,
		Recognizer:       RecognizerTesseract,
		BatchWorkers:     1,
	}
}
