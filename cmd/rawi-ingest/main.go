// Command rawi-ingest builds a knowledge index from a directory of UTF-8 text
// files. Each blank-line-separated paragraph becomes one chunk, embedded via
// the embeddings API and stored with its vector for the agent to retrieve.
//
// Usage:
//
//	rawi-ingest -src ./docs [-index ./knowledge_index] [-dim 1536]
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/rawi-voice/rawi/internal/dotenv"
	"github.com/rawi-voice/rawi/pkg/config"
	"github.com/rawi-voice/rawi/pkg/knowledge"
	"github.com/rawi-voice/rawi/pkg/retrieval"
)

type options struct {
	envFile   string
	srcDir    string
	indexPath string
	dimension int
	workers   int
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	var opt options
	flag.StringVar(&opt.envFile, "env", ".env", "Path to a dotenv file (missing file is not an error)")
	flag.StringVar(&opt.srcDir, "src", "", "Directory of .txt/.md source files; required")
	flag.StringVar(&opt.indexPath, "index", "", "Index directory to create (overrides RAWI_INDEX_PATH)")
	flag.IntVar(&opt.dimension, "dim", 1536, "Embedding dimensionality of the index")
	flag.IntVar(&opt.workers, "workers", 4, "Concurrent embedding requests")
	flag.Parse()

	if strings.TrimSpace(opt.srcDir) == "" {
		fmt.Fprintln(os.Stderr, "-src is required")
		return 2
	}
	if opt.dimension <= 0 {
		fmt.Fprintln(os.Stderr, "-dim must be > 0")
		return 2
	}
	if opt.workers <= 0 {
		fmt.Fprintln(os.Stderr, "-workers must be > 0")
		return 2
	}

	if err := dotenv.Load(opt.envFile); err != nil {
		fmt.Fprintln(os.Stderr, "load env file:", err)
		return 2
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 2
	}
	if strings.TrimSpace(opt.indexPath) != "" {
		cfg.IndexPath = opt.indexPath
	}
	if cfg.OpenAIKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (required for embeddings)")
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder := retrieval.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.EmbeddingsBaseURL, cfg.EmbeddingsModel, nil)
	if err := ingest(ctx, logger, embedder, opt.srcDir, cfg.IndexPath, opt.dimension, opt.workers); err != nil {
		fmt.Fprintln(os.Stderr, "ingest failed:", err)
		return 1
	}
	return 0
}

func ingest(ctx context.Context, logger *slog.Logger, embedder *retrieval.OpenAIEmbedder, srcDir, indexPath string, dimension, workers int) error {
	sources, err := collectSources(srcDir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no .txt or .md files under %s", srcDir)
	}

	writer, err := knowledge.CreateIndex(ctx, indexPath, dimension)
	if err != nil {
		return err
	}
	defer writer.Close()

	total := 0
	for _, path := range sources {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		paragraphs := splitParagraphs(string(data))
		if len(paragraphs) == 0 {
			logger.Warn("no paragraphs in file, skipping", "path", path)
			continue
		}

		documentID := filepath.Base(path)
		chunks := make([]knowledge.Chunk, len(paragraphs))

		// Embed concurrently, write sequentially: the index keeps source
		// order via seq, and the database writer is a single connection.
		p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
		for i, text := range paragraphs {
			p.Go(func(ctx context.Context) error {
				vector, err := embedder.Embed(ctx, text)
				if err != nil {
					return fmt.Errorf("embed %s paragraph %d: %w", documentID, i, err)
				}
				if len(vector) != dimension {
					return fmt.Errorf("%s paragraph %d: embedding has dimension %d, index wants %d",
						documentID, i, len(vector), dimension)
				}
				chunks[i] = knowledge.Chunk{
					ID:         uuid.NewString(),
					DocumentID: documentID,
					Text:       text,
					Embedding:  vector,
				}
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return err
		}

		for i, chunk := range chunks {
			if err := writer.AppendChunk(ctx, chunk, i); err != nil {
				return err
			}
		}
		total += len(chunks)
		logger.Info("document ingested", "document_id", documentID, "chunks", len(chunks))
	}

	logger.Info("index built", "path", indexPath, "documents", len(sources), "chunks", total, "dimension", dimension)
	return nil
}

func collectSources(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}

// splitParagraphs splits text into chunks on blank lines. Whitespace-only
// paragraphs are dropped.
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var paragraphs []string
	for _, block := range strings.Split(normalized, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		paragraphs = append(paragraphs, block)
	}
	return paragraphs
}
