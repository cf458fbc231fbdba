package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/site"
)

type stubFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	errs     map[string]error
	calls    int
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	payload, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", url)
	}
	return payload, nil
}

// testStrategy decodes payloads of the form {"name": "..."} and rejects
// anything else.
type testStrategy struct{}

func (testStrategy) Name() string            { return "test" }
func (testStrategy) Metadata() site.Metadata { return site.Metadata{} }

func (testStrategy) BuildURL(productURL string) string { return productURL + ".json" }

func (testStrategy) ParseProduct(raw []byte, entry catalog.SitemapEntry, _ catalog.CategoryPaths) (catalog.Product, error) {
	var doc struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return catalog.Product{}, err
	}
	if doc.Name == "" {
		return catalog.Product{}, errors.New("missing name")
	}
	return catalog.Product{URL: entry.URL, Name: doc.Name}, nil
}

type recordingStore struct {
	mu       sync.Mutex
	products []catalog.Product
	failURL  string
}

func (s *recordingStore) UpsertProduct(_ context.Context, p catalog.Product) error {
	if p.URL == s.failURL {
		return errors.New("db down")
	}
	s.mu.Lock()
	s.products = append(s.products, p)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) URLSet(context.Context) ([]string, error)            { return nil, nil }
func (s *recordingStore) Retire(context.Context, []string) error              { return nil }
func (s *recordingStore) Products(context.Context) ([]catalog.Product, error) { return nil, nil }
func (s *recordingStore) Close()                                              {}

func (s *recordingStore) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.products))
	for i, p := range s.products {
		out[i] = p.URL
	}
	return out
}

func entries(urls ...string) []catalog.SitemapEntry {
	out := make([]catalog.SitemapEntry, len(urls))
	for i, u := range urls {
		out[i] = catalog.SitemapEntry{URL: u}
	}
	return out
}

func TestRunPersistsAllEntries(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"a.json": []byte(`{"name":"A"}`),
		"b.json": []byte(`{"name":"B"}`),
		"c.json": []byte(`{"name":"C"}`),
	}}
	st := &recordingStore{}
	stats := catalog.NewRunStats()
	p := New(Config{Workers: 2}, fetcher, testStrategy{}, nil, st, stats, zap.NewNop())

	persisted, err := p.Run(context.Background(), entries("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, persisted)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, st.urls())

	snap := stats.Snapshot()
	assert.EqualValues(t, 3, snap.ProductsRaw)
	assert.EqualValues(t, 3, snap.ProductsUnique)
}

func TestRunSkipsGoneProducts(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		payloads: map[string][]byte{"a.json": []byte(`{"name":"A"}`)},
		errs: map[string]error{
			"gone.json": fmt.Errorf("fetch: %w", catalog.ErrNotFound),
		},
	}
	st := &recordingStore{}
	p := New(Config{Workers: 2}, fetcher, testStrategy{}, nil, st, nil, zap.NewNop())

	persisted, err := p.Run(context.Background(), entries("a", "gone"))
	require.NoError(t, err)
	assert.Equal(t, 1, persisted)
	assert.Equal(t, []string{"a"}, st.urls())
}

func TestRunDropsUnparseablePayloads(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"a.json":   []byte(`{"name":"A"}`),
		"bad.json": []byte(`<html>denied</html>`),
	}}
	st := &recordingStore{}
	stats := catalog.NewRunStats()
	p := New(Config{Workers: 2}, fetcher, testStrategy{}, nil, st, stats, zap.NewNop())

	persisted, err := p.Run(context.Background(), entries("a", "bad"))
	require.NoError(t, err)
	assert.Equal(t, 1, persisted)

	snap := stats.Snapshot()
	assert.EqualValues(t, 2, snap.ProductsRaw)
	assert.EqualValues(t, 1, snap.ProductsUnique)
}

func TestRunContinuesPastPersistFailure(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"a.json": []byte(`{"name":"A"}`),
		"b.json": []byte(`{"name":"B"}`),
	}}
	st := &recordingStore{failURL: "a"}
	p := New(Config{Workers: 1}, fetcher, testStrategy{}, nil, st, nil, zap.NewNop())

	persisted, err := p.Run(context.Background(), entries("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, persisted)
	assert.Equal(t, []string{"b"}, st.urls())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	blocker := &blockingFetcher{release: make(chan struct{})}
	st := &recordingStore{}
	p := New(Config{Workers: 1}, blocker, testStrategy{}, nil, st, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, entries("a", "b", "c"))
		done <- err
	}()

	cancel()
	close(blocker.release)
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

type blockingFetcher struct {
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if strings.HasSuffix(url, ".json") {
		return []byte(`{"name":"X"}`), nil
	}
	return nil, errors.New("unexpected")
}
