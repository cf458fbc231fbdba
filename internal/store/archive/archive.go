// Package archive is a file-backed catalog store: the whole catalog is
// held in memory during the run and flushed as one brotli-compressed JSON
// snapshot, which the next run loads as its stored state.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/blob"
	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// Config locates the snapshot.
type Config struct {
	// Dir is the local directory holding the snapshot between runs.
	Dir string
	// Object is the snapshot file name, conventionally ending in .json.br.
	Object string
}

// Store implements the catalog store on an in-memory map plus a snapshot
// file. Flush must be called at the end of a run or the run's writes are
// lost.
type Store struct {
	cfg    Config
	sink   blob.Store
	logger *zap.Logger

	mu       sync.RWMutex
	products map[string]catalog.Product
}

// Open loads the prior snapshot if one exists. The sink, when non-nil,
// additionally receives every flushed snapshot.
func Open(cfg Config, sink blob.Store, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("output.dir is required")
	}
	if cfg.Object == "" {
		cfg.Object = "catalog.json.br"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		products: make(map[string]catalog.Product),
	}

	raw, err := os.ReadFile(s.snapshotPath())
	if os.IsNotExist(err) {
		logger.Info("no prior snapshot, starting empty", zap.String("path", s.snapshotPath()))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var loaded []catalog.Product
	dec := json.NewDecoder(brotli.NewReader(bytes.NewReader(raw)))
	if err := dec.Decode(&loaded); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.snapshotPath(), err)
	}
	for _, p := range loaded {
		s.products[p.URL] = p
	}
	logger.Info("snapshot loaded",
		zap.String("path", s.snapshotPath()),
		zap.Int("products", len(s.products)))
	return s, nil
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.cfg.Dir, s.cfg.Object)
}

// URLSet returns the stored URLs sorted ascending.
func (s *Store) URLSet(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.products))
	for url := range s.products {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

// UpsertProduct replaces the product keyed by URL.
func (s *Store) UpsertProduct(_ context.Context, p catalog.Product) error {
	if p.URL == "" {
		return fmt.Errorf("product url is required")
	}
	s.mu.Lock()
	s.products[p.URL] = p
	s.mu.Unlock()
	return nil
}

// Retire drops the products for the given URLs.
func (s *Store) Retire(_ context.Context, urls []string) error {
	s.mu.Lock()
	for _, url := range urls {
		delete(s.products, url)
	}
	s.mu.Unlock()
	return nil
}

// Products returns the stored products sorted by URL.
func (s *Store) Products(context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// Flush writes the snapshot to disk and, when a sink is configured,
// uploads the same bytes there. It returns the sink URI when one was
// written.
func (s *Store) Flush(ctx context.Context) (string, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(products)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(payload); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close compressor: %w", err)
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(s.snapshotPath(), buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	s.logger.Info("snapshot flushed",
		zap.String("path", s.snapshotPath()),
		zap.Int("products", len(products)),
		zap.Int("bytes", buf.Len()))

	if s.sink == nil {
		return "", nil
	}
	uri, err := s.sink.PutObject(ctx, s.cfg.Object, "application/json", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return uri, nil
}

// Close is a no-op; Flush owns persistence.
func (s *Store) Close() {}
