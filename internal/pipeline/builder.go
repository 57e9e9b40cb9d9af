package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/embedding"
	"github.com/hikawa/kensaku/internal/vector"
)

// BuildReport summarizes one index build.
type BuildReport struct {
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Skipped  []string      `json:"skipped,omitempty"`
	Duration time.Duration `json:"-"`
}

// Builder rebuilds the vector index from the document store. Each build
// produces a fresh immutable index and swaps it into the shared Ref; readers
// in flight keep their snapshot.
type Builder struct {
	store    docstore.Store
	cache    *embedding.Cache
	embedder embedding.Embedder
	ref      *vector.Ref

	indexDir  string
	cachePath string
	workers   int
	logger    *zap.Logger

	buildMu sync.Mutex
}

// NewBuilder creates a Builder. workers bounds embedding concurrency;
// values below 1 are treated as 1.
func NewBuilder(store docstore.Store, cache *embedding.Cache, embedder embedding.Embedder,
	ref *vector.Ref, indexDir, cachePath string, workers int, logger *zap.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:     store,
		cache:     cache,
		embedder:  embedder,
		ref:       ref,
		indexDir:  indexDir,
		cachePath: cachePath,
		workers:   workers,
		logger:    logger,
	}
}

// Build embeds every stored document (reusing cached embeddings for
// unchanged text), constructs a new index, persists the index and the cache,
// and swaps the new index live. Documents whose embedding fails are skipped
// and reported; dimension mismatches and persistence failures abort the
// build and leave the previous index live. Concurrent Build calls are
// serialized.
func (b *Builder) Build(ctx context.Context) (*BuildReport, error) {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	start := time.Now()

	docs, err := b.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	embeddings := make([][]float32, len(docs))
	errs := make([]error, len(docs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					errs[i] = ctx.Err()
					continue
				}
				doc := docs[i]
				emb, err := b.cache.GetOrCompute(ctx, doc.ID, doc.Text, b.embedder.Embed)
				if err != nil {
					errs[i] = err
					continue
				}
				embeddings[i] = emb
			}
		}()
	}
	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &BuildReport{Total: len(docs)}
	entries := make([]vector.Entry, 0, len(docs))
	for i, doc := range docs {
		if errs[i] != nil {
			var embErr *embedding.EmbeddingError
			if !errors.As(errs[i], &embErr) {
				return nil, errs[i]
			}
			b.logger.Warn("skipping document, embedding failed",
				zap.String("doc_id", doc.ID),
				zap.Error(errs[i]))
			report.Skipped = append(report.Skipped, doc.ID)
			continue
		}
		entries = append(entries, vector.Entry{DocID: doc.ID, Embedding: embeddings[i]})
	}

	idx, err := vector.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if b.indexDir != "" {
		if err := idx.Save(b.indexDir); err != nil {
			return nil, fmt.Errorf("persist index: %w", err)
		}
	}
	if b.cachePath != "" {
		if err := b.cache.Save(b.cachePath); err != nil {
			return nil, fmt.Errorf("persist cache: %w", err)
		}
	}

	b.ref.Swap(idx)

	report.Indexed = idx.Size()
	report.Duration = time.Since(start)
	b.logger.Info("index rebuilt",
		zap.Int("total", report.Total),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("elapsed", report.Duration))
	return report, nil
}
