// Package knowledge holds the persisted chunk index the agent retrieves from.
//
// The index is a directory containing a libsql database of text chunks with
// precomputed embeddings. It is written offline by the ingest tool and opened
// strictly read-only by the agent: all chunks are loaded into memory at
// startup and never mutated afterwards, so queries are safe to run
// concurrently without locking.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/tursodatabase/go-libsql"
	"gonum.org/v1/gonum/floats"
)

// DatabaseFile is the name of the index database inside the index directory.
const DatabaseFile = "chunks.db"

// ErrStoreUnavailable reports that the persisted index cannot be opened.
// Fatal at startup; never raised by queries on an already-open store.
var ErrStoreUnavailable = errors.New("knowledge store unavailable")

// ErrDimensionMismatch reports a query vector whose dimensionality does not
// match the index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one retrievable unit of text: a single source paragraph with its
// precomputed embedding. Immutable after load.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Embedding  []float32
}

// Scored pairs a chunk with its cosine similarity to a query vector.
type Scored struct {
	Chunk Chunk
	Score float64
}

// Store is the in-memory view of the persisted index.
type Store struct {
	chunks    []Chunk
	vectors   [][]float64 // float64 copies for scoring
	norms     []float64
	dimension int
}

// Open loads the index at dir into memory. The database connection is closed
// before returning; the agent never touches the file again at runtime.
func Open(ctx context.Context, dir string) (*Store, error) {
	dbPath := filepath.Join(dir, DatabaseFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, dbPath, err)
	}

	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, dbPath, err)
	}
	defer db.Close()

	dimension, err := indexDimension(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, document_id, text, embedding FROM chunks ORDER BY document_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: read chunks: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	s := &Store{dimension: dimension}
	for rows.Next() {
		var (
			chunk Chunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", ErrStoreUnavailable, err)
		}
		chunk.Embedding, err = DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", ErrStoreUnavailable, chunk.ID, err)
		}
		if len(chunk.Embedding) != dimension {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, index declares %d",
				ErrStoreUnavailable, chunk.ID, len(chunk.Embedding), dimension)
		}
		vec := make([]float64, len(chunk.Embedding))
		for i, v := range chunk.Embedding {
			vec[i] = float64(v)
		}
		s.chunks = append(s.chunks, chunk)
		s.vectors = append(s.vectors, vec)
		s.norms = append(s.norms, floats.Norm(vec, 2))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read chunks: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

// Len reports the number of loaded chunks.
func (s *Store) Len() int { return len(s.chunks) }

// Dimension reports the embedding dimensionality of the index.
func (s *Store) Dimension() int { return s.dimension }

// Query returns up to k chunks ranked by descending cosine similarity to the
// query vector. An empty store yields an empty result, not an error.
func (s *Store) Query(vector []float32, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be > 0, got %d", k)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	query := make([]float64, len(vector))
	for i, v := range vector {
		query[i] = float64(v)
	}
	queryNorm := floats.Norm(query, 2)
	if queryNorm == 0 {
		return []Scored{}, nil
	}

	results := make([]Scored, 0, len(s.chunks))
	for i, vec := range s.vectors {
		if s.norms[i] == 0 {
			continue
		}
		score := floats.Dot(query, vec) / (queryNorm * s.norms[i])
		results = append(results, Scored{Chunk: s.chunks[i], Score: score})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func indexDimension(ctx context.Context, db *sql.DB) (int, error) {
	var dimension int
	err := db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&dimension)
	if err != nil {
		return 0, fmt.Errorf("read index dimension: %w", err)
	}
	if dimension <= 0 {
		return 0, fmt.Errorf("index declares non-positive dimension %d", dimension)
	}
	return dimension, nil
}
