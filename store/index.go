package store

import (
	"context"
	"fmt"

	"sysrev/types"
)

// IndexLoadError marks a persisted index that is missing, corrupt, or whose
// vector count does not match its metadata count. The session owning it must
// be re-uploaded.
type IndexLoadError struct {
	Path string
	Err  error
}

func (e IndexLoadError) Error() string {
	return fmt.Sprintf("cannot load index %s: %v", e.Path, e.Err)
}

func (e IndexLoadError) Unwrap() error { return e.Err }

// InvalidQueryError marks a query vector whose dimensionality does not match
// the index it is searched against. This signals a configuration problem
// (e.g. a different embedding model between ingestion and query).
type InvalidQueryError struct {
	Got  int
	Want int
}

func (e InvalidQueryError) Error() string {
	return fmt.Sprintf("query vector has dimension %d, index has %d", e.Got, e.Want)
}

// SearchHit is one retrieved chunk with its distance to the query vector.
type SearchHit struct {
	Meta     types.ChunkMeta
	Distance float32
}

// Index is a loaded, searchable vector index.
type Index interface {
	// Search returns the k nearest chunks ordered by ascending distance,
	// ties broken by insertion order. Returns fewer than k only when the
	// index holds fewer entries.
	Search(query []float32, k int) ([]SearchHit, error)
	Count() int
	Dimension() int
	// Papers lists distinct paper names in first-seen order.
	Papers() []string
}

// IndexStore persists vector indexes plus their parallel chunk metadata and
// loads them back. Vector position is the join key between the two.
type IndexStore interface {
	// Build persists a new index under name and returns the two opaque
	// locations (index, metadata) to hand back to the client.
	Build(ctx context.Context, name string, vectors [][]float32, meta []types.ChunkMeta) (string, string, error)
	// Append extends an existing index with more vectors and metadata,
	// preserving all prior entries and their order.
	Append(ctx context.Context, indexPath, metadataPath string, vectors [][]float32, meta []types.ChunkMeta) error
	Load(ctx context.Context, indexPath, metadataPath string) (Index, error)
}

func distinctPapers(meta []types.ChunkMeta) []string {
	seen := make(map[string]struct{}, len(meta))
	var papers []string
	for _, m := range meta {
		if _, ok := seen[m.PaperName]; !ok {
			seen[m.PaperName] = struct{}{}
			papers = append(papers, m.PaperName)
		}
	}
	return papers
}
