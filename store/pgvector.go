package store

import (
	"context"
	"fmt"
	"strings"

	"sysrev/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndexStore is the pgvector-backed IndexStore. Each upload batch is
// a set of rows sharing a batch id; the returned locations encode that id.
// Row position is the join key between vector and metadata, same as the file
// backend.
type PostgresIndexStore struct {
	pool *pgxpool.Pool
}

func NewPostgresIndexStore(ctx context.Context, connStr string) (*PostgresIndexStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresIndexStore{pool: pool}, nil
}

func (p *PostgresIndexStore) Init(ctx context.Context) error {
	query := `
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS review_chunks (
        batch_id UUID NOT NULL,
        position INT NOT NULL,
        paper_name TEXT NOT NULL,
        content TEXT NOT NULL,
        chunk_index INT NOT NULL,
        total_chunks INT NOT NULL,
        embedding vector NOT NULL,
        PRIMARY KEY (batch_id, position)
    );

	CREATE INDEX IF NOT EXISTS idx_review_chunks_batch ON review_chunks(batch_id);
    `
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresIndexStore) Close() {
	p.pool.Close()
}

func (p *PostgresIndexStore) Build(ctx context.Context, name string, vectors [][]float32, meta []types.ChunkMeta) (string, string, error) {
	if len(vectors) != len(meta) {
		return "", "", fmt.Errorf("vector count %d does not match metadata count %d", len(vectors), len(meta))
	}

	batchID := uuid.New()
	if err := p.insert(ctx, batchID, 0, vectors, meta); err != nil {
		return "", "", err
	}

	loc := "pg:" + batchID.String()
	return loc, loc, nil
}

func (p *PostgresIndexStore) Append(ctx context.Context, indexPath, metadataPath string, vectors [][]float32, meta []types.ChunkMeta) error {
	if len(vectors) != len(meta) {
		return fmt.Errorf("vector count %d does not match metadata count %d", len(vectors), len(meta))
	}

	batchID, err := parseBatchLocation(indexPath, metadataPath)
	if err != nil {
		return err
	}

	var count int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM review_chunks WHERE batch_id = $1", batchID).Scan(&count); err != nil {
		return IndexLoadError{Path: indexPath, Err: err}
	}
	return p.insert(ctx, batchID, count, vectors, meta)
}

func (p *PostgresIndexStore) insert(ctx context.Context, batchID uuid.UUID, startPos int, vectors [][]float32, meta []types.ChunkMeta) error {
	query := `
    INSERT INTO review_chunks (batch_id, position, paper_name, content, chunk_index, total_chunks, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for i := range vectors {
		_, err := p.pool.Exec(ctx, query,
			batchID, startPos+i, meta[i].PaperName, meta[i].Text, meta[i].ChunkIndex, meta[i].TotalChunks,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresIndexStore) Load(ctx context.Context, indexPath, metadataPath string) (Index, error) {
	batchID, err := parseBatchLocation(indexPath, metadataPath)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		"SELECT paper_name, vector_dims(embedding) FROM review_chunks WHERE batch_id = $1 ORDER BY position",
		batchID)
	if err != nil {
		return nil, IndexLoadError{Path: indexPath, Err: err}
	}
	defer rows.Close()

	var (
		meta []types.ChunkMeta
		dim  int
	)
	for rows.Next() {
		var m types.ChunkMeta
		var d int
		if err := rows.Scan(&m.PaperName, &d); err != nil {
			return nil, IndexLoadError{Path: indexPath, Err: err}
		}
		if dim == 0 {
			dim = d
		} else if d != dim {
			return nil, IndexLoadError{Path: indexPath, Err: fmt.Errorf("inconsistent vector dimensions in batch")}
		}
		meta = append(meta, m)
	}
	if err := rows.Err(); err != nil {
		return nil, IndexLoadError{Path: indexPath, Err: err}
	}
	if len(meta) == 0 {
		return nil, IndexLoadError{Path: indexPath, Err: fmt.Errorf("batch %s not found", batchID)}
	}

	return &pgIndex{pool: p.pool, batchID: batchID, count: len(meta), dim: dim, papers: distinctPapers(meta)}, nil
}

type pgIndex struct {
	pool    *pgxpool.Pool
	batchID uuid.UUID
	count   int
	dim     int
	papers  []string
}

func (g *pgIndex) Count() int       { return g.count }
func (g *pgIndex) Dimension() int   { return g.dim }
func (g *pgIndex) Papers() []string { return g.papers }

func (g *pgIndex) Search(query []float32, k int) ([]SearchHit, error) {
	if len(query) != g.dim {
		return nil, InvalidQueryError{Got: len(query), Want: g.dim}
	}
	if k <= 0 {
		return nil, nil
	}

	// <-> is L2 distance; position breaks ties deterministically.
	sqlQuery := `
		SELECT paper_name, content, chunk_index, total_chunks, embedding <-> $2 AS distance
		FROM review_chunks
		WHERE batch_id = $1
		ORDER BY embedding <-> $2, position
		LIMIT $3
	`
	rows, err := g.pool.Query(context.Background(), sqlQuery, g.batchID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var distance float64
		if err := rows.Scan(&hit.Meta.PaperName, &hit.Meta.Text, &hit.Meta.ChunkIndex, &hit.Meta.TotalChunks, &distance); err != nil {
			return nil, err
		}
		hit.Distance = float32(distance)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func parseBatchLocation(indexPath, metadataPath string) (uuid.UUID, error) {
	if indexPath != metadataPath {
		return uuid.Nil, IndexLoadError{Path: indexPath, Err: fmt.Errorf("index and metadata locations refer to different batches")}
	}
	id, ok := strings.CutPrefix(indexPath, "pg:")
	if !ok {
		return uuid.Nil, IndexLoadError{Path: indexPath, Err: fmt.Errorf("not a postgres index location")}
	}
	batchID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, IndexLoadError{Path: indexPath, Err: fmt.Errorf("invalid batch id: %w", err)}
	}
	return batchID, nil
}
