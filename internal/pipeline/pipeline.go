// Package pipeline wires the query path (embed, search, rank, explain) and
// the index build path on top of the shared cache and live index reference.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/embedding"
	"github.com/hikawa/kensaku/internal/models"
	"github.com/hikawa/kensaku/internal/ranking"
	"github.com/hikawa/kensaku/internal/vector"
	"github.com/hikawa/kensaku/pkg/utils"
)

// Pipeline executes queries against the live index. It holds no per-query
// state: all mutable state lives in the index Ref, which rebuilds swap
// atomically.
type Pipeline struct {
	embedder embedding.Embedder
	ref      *vector.Ref
	ranker   *ranking.Ranker
	logger   *zap.Logger
}

// New creates a query pipeline over the given live index reference.
func New(embedder embedding.Embedder, ref *vector.Ref, ranker *ranking.Ranker, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{embedder: embedder, ref: ref, ranker: ranker, logger: logger}
}

// Query embeds queryText, searches the live index, and returns ranked,
// explained results. topK must be positive; an empty query is valid and is
// embedded as-is. Queries against a never-built index fail with
// ErrIndexNotBuilt; an empty built index yields an empty result list.
func (p *Pipeline) Query(ctx context.Context, queryText string, topK int) (*models.SearchResponse, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	idx := p.ref.Load()
	if idx == nil {
		return nil, ErrIndexNotBuilt
	}

	start := time.Now()

	queryEmbedding, err := p.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	utils.NormalizeL2(queryEmbedding)

	hits, err := idx.Search(queryEmbedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results, err := p.ranker.Rank(ctx, queryText, hits)
	if err != nil {
		return nil, fmt.Errorf("rank results: %w", err)
	}

	p.logger.Debug("query executed",
		zap.String("query", queryText),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.SearchResponse{
		Results:   results,
		Query:     queryText,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}
