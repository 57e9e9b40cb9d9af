package ranking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/models"
	"github.com/hikawa/kensaku/internal/vector"
)

func seedStore(t *testing.T, docs map[string]string) docstore.Store {
	t.Helper()
	store := docstore.NewMemoryStore()
	for id, text := range docs {
		if err := store.Put(context.Background(), &models.Document{ID: id, Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestRank_DescendingByScore(t *testing.T) {
	store := seedStore(t, map[string]string{
		"a": "alpha document",
		"b": "beta document",
		"c": "gamma document",
	})
	r := NewRanker(store, 230, nil)

	results, err := r.Rank(context.Background(), "document", []vector.SearchHit{
		{DocID: "b", Score: 0.5},
		{DocID: "a", Score: 0.9},
		{DocID: "c", Score: 0.7},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []string{"a", "c", "b"} {
		if results[i].DocID != want {
			t.Errorf("position %d: got %s, want %s", i, results[i].DocID, want)
		}
	}
}

func TestRank_TieBrokenByAscendingDocID(t *testing.T) {
	store := seedStore(t, map[string]string{
		"zed":   "same text",
		"apple": "same text",
		"mango": "same text",
	})
	r := NewRanker(store, 230, nil)

	results, err := r.Rank(context.Background(), "same", []vector.SearchHit{
		{DocID: "zed", Score: 0.8},
		{DocID: "apple", Score: 0.8},
		{DocID: "mango", Score: 0.8},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"apple", "mango", "zed"} {
		if results[i].DocID != want {
			t.Errorf("position %d: got %s, want %s", i, results[i].DocID, want)
		}
	}
}

func TestRank_DropsMissingDocuments(t *testing.T) {
	store := seedStore(t, map[string]string{"present": "some text here"})
	r := NewRanker(store, 230, nil)

	results, err := r.Rank(context.Background(), "text", []vector.SearchHit{
		{DocID: "present", Score: 0.9},
		{DocID: "vanished", Score: 0.95},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].DocID != "present" {
		t.Errorf("got %s", results[0].DocID)
	}
}

// brokenStore fails every read to stand in for a store whose backend is down.
type brokenStore struct {
	docstore.Store
	err error
}

func (s *brokenStore) Get(ctx context.Context, id string) (*models.Document, error) {
	return nil, s.err
}

func TestRank_PropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("database is locked")
	store := &brokenStore{Store: docstore.NewMemoryStore(), err: storeErr}
	r := NewRanker(store, 230, nil)

	results, err := r.Rank(context.Background(), "query", []vector.SearchHit{
		{DocID: "doc", Score: 0.9},
	})
	if err == nil {
		t.Fatalf("want error, got %d results", len(results))
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("error should wrap the store failure: %v", err)
	}
}

func TestRank_PreviewTruncated(t *testing.T) {
	long := strings.Repeat("word ", 100)
	store := seedStore(t, map[string]string{"long": long})
	r := NewRanker(store, 50, nil)

	results, err := r.Rank(context.Background(), "word", []vector.SearchHit{{DocID: "long", Score: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results[0].Preview) > 53 {
		t.Errorf("preview too long: %d chars", len(results[0].Preview))
	}
	if !strings.HasSuffix(results[0].Preview, "...") {
		t.Errorf("preview should be elided: %q", results[0].Preview)
	}
}

func TestRank_AttachesExplanation(t *testing.T) {
	store := seedStore(t, map[string]string{"doc": "introduction to machine learning"})
	r := NewRanker(store, 230, nil)

	results, err := r.Rank(context.Background(), "machine learning basics", []vector.SearchHit{{DocID: "doc", Score: 0.88}})
	if err != nil {
		t.Fatal(err)
	}
	exp := results[0].Explanation
	if len(exp.OverlapKeywords) != 2 {
		t.Errorf("overlap: got %v", exp.OverlapKeywords)
	}
	if results[0].Score != 0.88 {
		t.Errorf("score must pass through unscaled: got %f", results[0].Score)
	}
}

func TestRank_EmptyHits(t *testing.T) {
	store := seedStore(t, nil)
	r := NewRanker(store, 230, nil)
	results, err := r.Rank(context.Background(), "anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results", len(results))
	}
}
