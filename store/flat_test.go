package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"sysrev/types"

	"github.com/stretchr/testify/require"
)

func testVectors() ([][]float32, []types.ChunkMeta) {
	vectors := [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 2, 0},
		{0, 0, 3},
	}
	meta := []types.ChunkMeta{
		{Text: "origin", PaperName: "alpha", ChunkIndex: 0, TotalChunks: 2},
		{Text: "unit x", PaperName: "alpha", ChunkIndex: 1, TotalChunks: 2},
		{Text: "two y", PaperName: "beta", ChunkIndex: 0, TotalChunks: 2},
		{Text: "three z", PaperName: "beta", ChunkIndex: 1, TotalChunks: 2},
	}
	return vectors, meta
}

func TestFlatBuildLoadSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-1", vectors, meta)
	require.NoError(t, err)
	require.NotEmpty(t, indexPath)
	require.NotEmpty(t, metadataPath)

	idx, err := s.Load(ctx, indexPath, metadataPath)
	require.NoError(t, err)
	require.Equal(t, 4, idx.Count())
	require.Equal(t, 3, idx.Dimension())
	require.Equal(t, []string{"alpha", "beta"}, idx.Papers())

	// Querying with an indexed vector returns that vector's metadata first,
	// at distance zero.
	hits, err := idx.Search(vectors[2], 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "two y", hits[0].Meta.Text)
	require.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestFlatSearchOrderedAscending(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-2", vectors, meta)
	require.NoError(t, err)

	idx, err := s.Load(ctx, indexPath, metadataPath)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0.1, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for i := 1; i < len(hits); i++ {
		require.GreaterOrEqual(t, hits[i].Distance, hits[i-1].Distance)
	}
}

func TestFlatSearchKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-3", vectors, meta)
	require.NoError(t, err)

	idx, err := s.Load(ctx, indexPath, metadataPath)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0, 0}, 50)
	require.NoError(t, err)
	require.Len(t, hits, 4)
}

func TestFlatSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-4", vectors, meta)
	require.NoError(t, err)

	idx, err := s.Load(ctx, indexPath, metadataPath)
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 2}, 1)
	require.ErrorAs(t, err, &InvalidQueryError{})
}

func TestFlatLoadCountMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-5", vectors, meta)
	require.NoError(t, err)

	// Drop one metadata entry behind the store's back.
	truncated, err := json.Marshal(meta[:3])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metadataPath, truncated, 0644))

	_, err = s.Load(ctx, indexPath, metadataPath)
	require.ErrorAs(t, err, &IndexLoadError{})
}

func TestFlatLoadMissingFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFlatIndexStore(dir)
	require.NoError(t, err)

	_, err = s.Load(ctx, filepath.Join(dir, "nope.index"), filepath.Join(dir, "nope_metadata.json"))
	require.ErrorAs(t, err, &IndexLoadError{})
}

func TestFlatLoadCorruptIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFlatIndexStore(dir)
	require.NoError(t, err)

	indexPath := filepath.Join(dir, "bad.index")
	require.NoError(t, os.WriteFile(indexPath, []byte("not an index"), 0644))
	metadataPath := filepath.Join(dir, "bad_metadata.json")
	require.NoError(t, os.WriteFile(metadataPath, []byte("[]"), 0644))

	_, err = s.Load(ctx, indexPath, metadataPath)
	require.ErrorAs(t, err, &IndexLoadError{})
}

func TestFlatAppendExtendsIndex(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-6", vectors, meta)
	require.NoError(t, err)

	more := [][]float32{{4, 4, 4}}
	moreMeta := []types.ChunkMeta{{Text: "late addition", PaperName: "gamma", ChunkIndex: 0, TotalChunks: 1}}
	require.NoError(t, s.Append(ctx, indexPath, metadataPath, more, moreMeta))

	idx, err := s.Load(ctx, indexPath, metadataPath)
	require.NoError(t, err)
	require.Equal(t, 5, idx.Count())
	require.Equal(t, []string{"alpha", "beta", "gamma"}, idx.Papers())

	hits, err := idx.Search([]float32{4, 4, 4}, 1)
	require.NoError(t, err)
	require.Equal(t, "late addition", hits[0].Meta.Text)
}

func TestFlatAppendDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors, meta := testVectors()
	indexPath, metadataPath, err := s.Build(ctx, "sess-7", vectors, meta)
	require.NoError(t, err)

	err = s.Append(ctx, indexPath, metadataPath, [][]float32{{1, 2}}, []types.ChunkMeta{{Text: "x", PaperName: "x"}})
	require.ErrorAs(t, err, &InvalidQueryError{})
}

func TestFlatSearchTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatIndexStore(t.TempDir())
	require.NoError(t, err)

	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}}
	meta := []types.ChunkMeta{
		{Text: "first", PaperName: "p"},
		{Text: "second", PaperName: "p"},
		{Text: "third", PaperName: "p"},
	}
	indexPath, metadataPath, err := s.Build(ctx, "sess-8", vectors, meta)
	require.NoError(t, err)

	idx, err := s.Load(ctx, indexPath, metadataPath)
	require.NoError(t, err)

	// All three are equidistant from the origin.
	hits, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, "first", hits[0].Meta.Text)
	require.Equal(t, "second", hits[1].Meta.Text)
	require.Equal(t, "third", hits[2].Meta.Text)
}
