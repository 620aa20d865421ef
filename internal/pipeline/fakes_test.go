package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

// pageImage encodes the page number in the raster width so fakes can tell
// pages apart.
func pageImage(page int) image.Image {
	return image.NewGray(image.Rect(0, 0, page, 1))
}

func pageOf(img image.Image) int { return img.Bounds().Dx() }

type fakeRenderer struct {
	mu       sync.Mutex
	pages    map[string]int
	failFor  map[string]error
	rendered map[string][]int
	scales   []float64
	counted  int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{pages: map[string]int{}, failFor: map[string]error{}, rendered: map[string][]int{}}
}

func (f *fakeRenderer) PageCount(_ context.Context, src Source) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counted++
	if n, ok := f.pages[src.Name]; ok {
		return n, nil
	}
	return 1, nil
}

func (f *fakeRenderer) Render(_ context.Context, src Source, page int, scale float64) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[src.Name]; err != nil {
		return nil, err
	}
	f.rendered[src.Name] = append(f.rendered[src.Name], page)
	f.scales = append(f.scales, scale)
	return pageImage(page), nil
}

// fakeDecoder returns the payload configured for a page number.
type fakeDecoder struct {
	payloads map[int]string
	panics   bool
	errPages map[int]error
}

func (d *fakeDecoder) Decode(_ context.Context, img image.Image) (string, bool, error) {
	if d.panics {
		panic("decoder exploded")
	}
	page := pageOf(img)
	if err := d.errPages[page]; err != nil {
		return "", false, err
	}
	text, ok := d.payloads[page]
	return text, ok, nil
}

type fakeRecognizer struct {
	factory *fakeFactory
	closed  bool
}

func (r *fakeRecognizer) Recognize(_ context.Context, img image.Image, lang string) (string, error) {
	r.factory.mu.Lock()
	defer r.factory.mu.Unlock()
	r.factory.pagesSeen = append(r.factory.pagesSeen, pageOf(img))
	r.factory.langs = append(r.factory.langs, lang)
	if r.factory.recognizeErr != nil {
		return "", r.factory.recognizeErr
	}
	return r.factory.text, nil
}

func (r *fakeRecognizer) Close() error {
	r.factory.mu.Lock()
	defer r.factory.mu.Unlock()
	r.closed = true
	r.factory.closed++
	return nil
}

type fakeFactory struct {
	mu           sync.Mutex
	text         string
	recognizeErr error
	acquireErr   error
	acquired     int
	closed       int
	pagesSeen    []int
	langs        []string
	live         []*fakeRecognizer
}

func (f *fakeFactory) NewRecognizer(context.Context) (TextRecognizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	r := &fakeRecognizer{factory: f}
	f.live = append(f.live, r)
	return r, nil
}

type fakeMetadata struct {
	err   error
	calls int
}

func (m *fakeMetadata) Write(_ context.Context, original []byte, _ string, res *models.DocumentResult) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return original, m.err
	}
	return append(append([]byte{}, original...), []byte("%stamped:"+res.ID)...), nil
}

var errBoom = errors.New("boom")

func fixedClock() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("res-%d", n)
	}
}
