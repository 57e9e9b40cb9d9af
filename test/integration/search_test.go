// Package integration provides end-to-end tests over real storage and
// persisted index artifacts.
package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hikawa/kensaku/internal/config"
	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/embedding"
	"github.com/hikawa/kensaku/internal/ingest"
	"github.com/hikawa/kensaku/internal/models"
	"github.com/hikawa/kensaku/internal/pipeline"
	"github.com/hikawa/kensaku/internal/ranking"
	"github.com/hikawa/kensaku/internal/vector"
)

func TestIntegration_IngestBuildSearch(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "documents.db"),
			IndexDir:     filepath.Join(dir, "vector_store"),
			CachePath:    filepath.Join(dir, "embeddings.json"),
		},
		Embedding: config.EmbeddingConfig{Mode: "mock", Dimensions: 8},
	}
	config.ApplyDefaults(cfg)

	store, err := docstore.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	defer embedder.Close()
	cache := embedding.NewCache()
	ref := vector.NewRef(nil)
	builder := pipeline.NewBuilder(store, cache, embedder, ref,
		cfg.Storage.IndexDir, cfg.Storage.CachePath, cfg.Search.BuildWorkers, nil)
	ranker := ranking.NewRanker(store, cfg.Search.PreviewLength, nil)
	p := pipeline.New(embedder, ref, ranker, nil)
	ingester := ingest.NewIngester(store, nil)

	ctx := context.Background()
	docs := map[string]string{
		"doc_001": "Introduction to Machine Learning for beginners",
		"doc_002": "Sourdough bread baking at home",
		"doc_003": "Advanced machine learning model evaluation",
	}
	for id, text := range docs {
		if _, err := ingester.AddDocument(ctx, &models.DocumentInput{ID: id, Text: text}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := builder.Build(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 3 {
		t.Fatalf("indexed %d, want 3", report.Indexed)
	}

	resp, err := p.Query(ctx, "introduction to machine learning for beginners", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	if resp.Results[0].DocID != "doc_001" {
		t.Errorf("first result: %s", resp.Results[0].DocID)
	}
	exp := resp.Results[0].Explanation
	if len(exp.OverlapKeywords) == 0 || exp.OverlapRatio == 0 {
		t.Errorf("explanation incomplete: %+v", exp)
	}

	// A fresh process loads the persisted artifacts and answers identically.
	store2, err := docstore.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	loaded, err := vector.Load(cfg.Storage.IndexDir)
	if err != nil {
		t.Fatal(err)
	}
	cache2 := embedding.NewCache()
	if err := cache2.Load(cfg.Storage.CachePath); err != nil {
		t.Fatal(err)
	}
	if cache2.Len() != 3 {
		t.Errorf("cache entries: got %d", cache2.Len())
	}
	p2 := pipeline.New(embedder, vector.NewRef(loaded), ranking.NewRanker(store2, cfg.Search.PreviewLength, nil), nil)
	resp2, err := p2.Query(ctx, "introduction to machine learning for beginners", 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range resp.Results {
		if resp.Results[i].DocID != resp2.Results[i].DocID {
			t.Errorf("position %d differs after reload: %s vs %s",
				i, resp.Results[i].DocID, resp2.Results[i].DocID)
		}
	}
}

func TestIntegration_RebuildAfterDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := docstore.NewSQLiteStore(filepath.Join(dir, "documents.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewMockEmbedder(8)
	defer embedder.Close()
	ref := vector.NewRef(nil)
	builder := pipeline.NewBuilder(store, embedding.NewCache(), embedder, ref, "", "", 1, nil)
	p := pipeline.New(embedder, ref, ranking.NewRanker(store, 230, nil), nil)
	ingester := ingest.NewIngester(store, nil)

	ctx := context.Background()
	for _, id := range []string{"keep", "drop"} {
		if _, err := ingester.AddDocument(ctx, &models.DocumentInput{ID: id, Text: id + " document text"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := builder.Build(ctx); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, "drop"); err != nil {
		t.Fatal(err)
	}
	if _, err := builder.Build(ctx); err != nil {
		t.Fatal(err)
	}

	resp, err := p.Query(ctx, "document", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocID != "keep" {
		t.Errorf("results after delete+rebuild: %+v", resp.Results)
	}
}
