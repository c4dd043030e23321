// Package retrieval embeds queries and searches the knowledge store.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rawi-voice/rawi/pkg/knowledge"
)

// ErrEmbedding reports that the query could not be embedded (empty or
// malformed input, or an embedding capability failure).
var ErrEmbedding = errors.New("embedding failed")

// ErrTimeout reports that retrieval exceeded its latency budget. Callers
// treat it as "no knowledge found", never as fatal.
var ErrTimeout = errors.New("retrieval timed out")

// Passage is one retrieved chunk of knowledge with its similarity score.
type Passage struct {
	Text       string
	DocumentID string
	Score      float64
}

// Embedder turns text into a fixed-size vector. The computation behind it is
// opaque: local model, remote API, or a test fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	TopK     int
	MinScore float64 // 0 disables the absolute threshold; ranking is relative
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Engine performs top-k retrieval over an immutable knowledge store.
type Engine struct {
	embedder Embedder
	store    *knowledge.Store
	topK     int
	minScore float64
	timeout  time.Duration
	logger   *slog.Logger
}

func NewEngine(embedder Embedder, store *knowledge.Store, opts Options) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		topK:     opts.TopK,
		minScore: opts.MinScore,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}, nil
}

// Retrieve embeds the query and returns up to TopK passages sorted by
// descending similarity. A store with no entries above the configured
// threshold yields an empty slice, not an error. Pure query, no side effects.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrEmbedding)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	scored, err := e.store.Query(vector, e.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	passages := make([]Passage, 0, len(scored))
	for _, hit := range scored {
		if e.minScore > 0 && hit.Score < e.minScore {
			continue
		}
		passages = append(passages, Passage{
			Text:       hit.Chunk.Text,
			DocumentID: hit.Chunk.DocumentID,
			Score:      hit.Score,
		})
	}

	e.logger.Debug("knowledge retrieval",
		"passages", len(passages),
		"latency_ms", time.Since(start).Milliseconds())
	return passages, nil
}
