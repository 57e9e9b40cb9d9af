// Package ranking orders vector search hits into explained, previewable
// results.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/explain"
	"github.com/hikawa/kensaku/internal/models"
	"github.com/hikawa/kensaku/internal/vector"
	"github.com/hikawa/kensaku/pkg/utils"
)

// Ranker turns raw index hits into ranked results with previews and
// explanations. It is stateless across calls.
type Ranker struct {
	store         docstore.Store
	previewLength int
	logger        *zap.Logger
}

// NewRanker creates a Ranker reading document text from store. previewLength
// bounds the preview snippet in characters.
func NewRanker(store docstore.Store, previewLength int, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{store: store, previewLength: previewLength, logger: logger}
}

// Rank orders hits descending by score, breaking exact ties by ascending
// doc id, and attaches a preview and explanation per result. Hits whose
// document is no longer in the store are dropped with a warning rather than
// failing the whole ranking; any other store error aborts the ranking.
func (r *Ranker) Rank(ctx context.Context, queryText string, hits []vector.SearchHit) ([]*models.RankedResult, error) {
	ordered := make([]vector.SearchHit, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].DocID < ordered[j].DocID
	})

	results := make([]*models.RankedResult, 0, len(ordered))
	for _, hit := range ordered {
		doc, err := r.store.Get(ctx, hit.DocID)
		if errors.Is(err, docstore.ErrNotFound) {
			r.logger.Warn("dropping result for missing document",
				zap.String("doc_id", hit.DocID),
				zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", hit.DocID, err)
		}
		results = append(results, &models.RankedResult{
			DocID:       hit.DocID,
			Score:       hit.Score,
			Preview:     utils.Truncate(strings.TrimSpace(doc.Text), r.previewLength),
			Explanation: explain.Explain(queryText, doc.Text),
		})
	}
	return results, nil
}
