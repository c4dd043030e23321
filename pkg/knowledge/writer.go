package knowledge

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Writer populates a fresh index directory. Only the offline ingest tool uses
// it; the agent itself opens indexes read-only.
type Writer struct {
	db        *sql.DB
	dimension int
}

// CreateIndex creates the index directory (if needed), applies schema
// migrations, and records the embedding dimensionality.
func CreateIndex(ctx context.Context, dir string, dimension int) (*Writer, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be > 0, got %d", dimension)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+filepath.Join(dir, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES ('dimension', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(dimension))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("record dimension: %w", err)
	}

	return &Writer{db: db, dimension: dimension}, nil
}

// AppendChunk stores one chunk. Chunks keep their source order via seq.
func (w *Writer) AppendChunk(ctx context.Context, chunk Chunk, seq int) error {
	if len(chunk.Embedding) != w.dimension {
		return fmt.Errorf("%w: chunk %s has %d, index has %d",
			ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), w.dimension)
	}
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, seq, text, embedding) VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentID, seq, chunk.Text, EncodeVector(chunk.Embedding))
	if err != nil {
		return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.db.Close()
}
