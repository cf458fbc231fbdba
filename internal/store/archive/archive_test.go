package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/blob"
	"github.com/dropradar/catalog-crawler/internal/catalog"
)

func product(url, name string) catalog.Product {
	return catalog.Product{
		URL:     url,
		Name:    name,
		Brand:   "Atelier Nord",
		Gender:  "men",
		Regular: 100,
		Lowest:  100,
	}
}

func TestOpenStartsEmptyWithoutSnapshot(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Dir: t.TempDir()}, nil, zap.NewNop())
	require.NoError(t, err)

	urls, err := s.URLSet(context.Background())
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestFlushAndReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Dir: dir}, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.UpsertProduct(ctx, product("b", "Second")))
	require.NoError(t, s.UpsertProduct(ctx, product("a", "First")))

	_, err = s.Flush(ctx)
	require.NoError(t, err)

	reloaded, err := Open(Config{Dir: dir}, nil, zap.NewNop())
	require.NoError(t, err)

	products, err := reloaded.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "a", products[0].URL)
	assert.Equal(t, "b", products[1].URL)
}

func TestUpsertReplacesByURL(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Dir: t.TempDir()}, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpsertProduct(ctx, product("a", "Old")))
	require.NoError(t, s.UpsertProduct(ctx, product("a", "New")))

	products, err := s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "New", products[0].Name)
}

func TestRetireRemovesProducts(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Dir: t.TempDir()}, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpsertProduct(ctx, product("a", "A")))
	require.NoError(t, s.UpsertProduct(ctx, product("b", "B")))
	require.NoError(t, s.Retire(ctx, []string{"a", "missing"}))

	urls, err := s.URLSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, urls)
}

func TestFlushUploadsToSink(t *testing.T) {
	t.Parallel()

	sink := blob.NewMemory()
	s, err := Open(Config{Dir: t.TempDir(), Object: "catalog.json.br"}, sink, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.UpsertProduct(ctx, product("a", "A")))

	uri, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mem://catalog.json.br", uri)

	compressed, ok := sink.Object("catalog.json.br")
	require.True(t, ok)

	var decoded []catalog.Product
	dec := json.NewDecoder(brotli.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, dec.Decode(&decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "a", decoded[0].URL)
}

func TestUpsertRequiresURL(t *testing.T) {
	t.Parallel()

	s, err := Open(Config{Dir: t.TempDir()}, nil, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.UpsertProduct(context.Background(), catalog.Product{}))
}
