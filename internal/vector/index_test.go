package vector

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuild_AssignsOrdinalsByInputOrder(t *testing.T) {
	idx, err := Build([]Entry{
		{DocID: "a", Embedding: []float32{1, 0}},
		{DocID: "b", Embedding: []float32{0, 1}},
		{DocID: "c", Embedding: []float32{1, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 || idx.Dimensions() != 2 {
		t.Fatalf("size=%d dims=%d", idx.Size(), idx.Dimensions())
	}
	for i, want := range []string{"a", "b", "c"} {
		got, ok := idx.DocID(i)
		if !ok || got != want {
			t.Errorf("ordinal %d: got %s, want %s", i, got, want)
		}
	}
	if _, ok := idx.DocID(3); ok {
		t.Error("out-of-range ordinal must not resolve")
	}
}

func TestBuild_DimensionMismatch(t *testing.T) {
	_, err := Build([]Entry{
		{DocID: "a", Embedding: []float32{1, 0, 0}},
		{DocID: "b", Embedding: []float32{1, 0}},
	})
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected *DimensionMismatchError, got %v", err)
	}
	if dimErr.DocID != "b" || dimErr.Want != 3 || dimErr.Got != 2 {
		t.Errorf("error detail: %+v", dimErr)
	}
}

func TestBuild_NormalizesVectors(t *testing.T) {
	idx, err := Build([]Entry{{DocID: "a", Embedding: []float32{3, 4}}})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search([]float32{0.6, 0.8}, 1)
	if err != nil {
		t.Fatal(err)
	}
	// (3,4) normalized is (0.6,0.8); dot with itself is 1.
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("score: got %f, want 1.0", hits[0].Score)
	}
}

func TestSearch_TopKOrder(t *testing.T) {
	idx, err := Build([]Entry{
		{DocID: "x", Embedding: []float32{1, 0, 0}},
		{DocID: "y", Embedding: []float32{0.9, 0.1, 0}},
		{DocID: "z", Embedding: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits", len(hits))
	}
	if hits[0].DocID != "x" || hits[1].DocID != "y" {
		t.Errorf("order: got %s, %s", hits[0].DocID, hits[1].DocID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("scores must be descending")
	}
}

func TestSearch_TieBrokenByLowerOrdinal(t *testing.T) {
	// Identical vectors: scores tie exactly; earlier insertion must win.
	idx, err := Build([]Entry{
		{DocID: "later-alpha", Embedding: []float32{1, 0}},
		{DocID: "earlier-beta", Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	hits, _ := idx.Search([]float32{1, 0}, 2)
	if hits[0].DocID != "later-alpha" || hits[1].DocID != "earlier-beta" {
		t.Errorf("tie-break: got %s, %s (lower ordinal must come first)", hits[0].DocID, hits[1].DocID)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	idx, err := Build([]Entry{
		{DocID: "a", Embedding: []float32{0.5, 0.5}},
		{DocID: "b", Embedding: []float32{0.5, 0.5}},
		{DocID: "c", Embedding: []float32{0.7, 0.3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	q := []float32{0.6, 0.4}
	first, _ := idx.Search(q, 3)
	second, _ := idx.Search(q, 3)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated search differs: %v vs %v", first, second)
	}
}

func TestSearch_TopKLargerThanIndex(t *testing.T) {
	idx, _ := Build([]Entry{
		{DocID: "a", Embedding: []float32{1, 0}},
		{DocID: "b", Embedding: []float32{0, 1}},
	})
	hits, err := idx.Search([]float32{1, 0}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want all 2", len(hits))
	}
}

func TestSearch_NonPositiveTopK(t *testing.T) {
	idx, _ := Build([]Entry{
		{DocID: "a", Embedding: []float32{1, 0}},
		{DocID: "b", Embedding: []float32{0, 1}},
	})
	for _, topK := range []int{0, -1, -100} {
		hits, err := idx.Search([]float32{1, 0}, topK)
		if err != nil {
			t.Fatalf("top_k=%d: %v", topK, err)
		}
		if len(hits) != 0 {
			t.Errorf("top_k=%d: got %d hits, want 0", topK, len(hits))
		}
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx, err := Build(nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits", len(hits))
	}
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	idx, _ := Build([]Entry{{DocID: "a", Embedding: []float32{1, 0}}})
	_, err := idx.Search([]float32{1, 0, 0}, 1)
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected *DimensionMismatchError, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vector_store")
	idx, err := Build([]Entry{
		{DocID: "doc_001", Embedding: []float32{1, 0, 0}},
		{DocID: "doc_002", Embedding: []float32{0, 1, 0}},
		{DocID: "doc_003", Embedding: []float32{0.5, 0.5, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 3 || loaded.Dimensions() != 3 {
		t.Fatalf("size=%d dims=%d", loaded.Size(), loaded.Dimensions())
	}
	for _, q := range [][]float32{{1, 0, 0}, {0, 1, 0}, {0.7, 0.7, 0}} {
		want, _ := idx.Search(q, 3)
		got, err := loaded.Search(q, 3)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("search after reload differs for %v: %v vs %v", q, want, got)
		}
	}
}

func TestLoad_CountMismatchIsCorrupt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vector_store")
	idx, _ := Build([]Entry{
		{DocID: "a", Embedding: []float32{1, 0}},
		{DocID: "b", Embedding: []float32{0, 1}},
	})
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}
	// Drop one id from the map so the two artifacts disagree on count.
	data, _ := json.Marshal([]string{"a"})
	if err := os.WriteFile(filepath.Join(dir, "idmap.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(dir)
	if !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("expected ErrIndexCorrupt, got %v", err)
	}
}

func TestLoad_MissingArtifacts(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nothing")); err == nil {
		t.Error("expected error for missing artifacts")
	}
}

func TestRef_SwapIsVisible(t *testing.T) {
	first, _ := Build([]Entry{{DocID: "a", Embedding: []float32{1, 0}}})
	ref := NewRef(first)
	if ref.Load().Size() != 1 {
		t.Fatal("initial index not visible")
	}
	second, _ := Build([]Entry{
		{DocID: "a", Embedding: []float32{1, 0}},
		{DocID: "b", Embedding: []float32{0, 1}},
	})
	ref.Swap(second)
	if ref.Load().Size() != 2 {
		t.Error("swapped index not visible")
	}
	// The old snapshot stays consistent for readers that hold it.
	if first.Size() != 1 {
		t.Error("old snapshot must be unchanged")
	}
}

func TestRef_NilUntilBuilt(t *testing.T) {
	ref := NewRef(nil)
	if ref.Load() != nil {
		t.Error("expected nil before first build")
	}
}
