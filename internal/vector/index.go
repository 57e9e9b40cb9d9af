// Package vector provides an exact inner-product vector index with ordinal
// id mapping and two-artifact persistence.
package vector

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hikawa/kensaku/pkg/utils"
)

const (
	vectorsFile = "vectors.bin"
	idMapFile   = "idmap.json"
)

// Entry is one (doc id, embedding) pair for index construction. Ordinals are
// assigned by input order.
type Entry struct {
	DocID     string
	Embedding []float32
}

// SearchHit is a single search result: the document id and its raw inner
// product against the query vector.
type SearchHit struct {
	DocID string
	Score float64
}

// Index is an immutable exact-search vector index. All vectors share one
// dimensionality and are unit-normalized at build time, so inner product
// equals cosine similarity. Build once, swap via Ref; never mutate in place.
type Index struct {
	dimensions int
	ids        []string // ordinal -> doc id, bijective within one build
	vectors    [][]float32
}

// Build constructs an index from entries. Every embedding must have the same
// dimensionality; otherwise Build fails with *DimensionMismatchError. Vectors
// are copied and normalized, so callers may reuse their slices.
func Build(entries []Entry) (*Index, error) {
	idx := &Index{
		ids:     make([]string, 0, len(entries)),
		vectors: make([][]float32, 0, len(entries)),
	}
	for _, e := range entries {
		if idx.dimensions == 0 {
			idx.dimensions = len(e.Embedding)
		}
		if len(e.Embedding) != idx.dimensions || idx.dimensions == 0 {
			return nil, &DimensionMismatchError{DocID: e.DocID, Want: idx.dimensions, Got: len(e.Embedding)}
		}
		vec := make([]float32, idx.dimensions)
		copy(vec, e.Embedding)
		utils.NormalizeL2(vec)
		idx.ids = append(idx.ids, e.DocID)
		idx.vectors = append(idx.vectors, vec)
	}
	return idx, nil
}

// Search returns the topK highest-scoring entries by inner product against
// query, descending by score, ties broken by lower ordinal (earlier insertion
// wins). topK larger than the index returns all entries; an empty index
// returns an empty slice, as does topK <= 0. The query must already be
// normalized by the caller.
func (idx *Index) Search(query []float32, topK int) ([]SearchHit, error) {
	if len(idx.ids) == 0 || topK <= 0 {
		return []SearchHit{}, nil
	}
	if len(query) != idx.dimensions {
		return nil, &DimensionMismatchError{Want: idx.dimensions, Got: len(query)}
	}

	type scored struct {
		ordinal int
		score   float64
	}
	scores := make([]scored, len(idx.vectors))
	for i, vec := range idx.vectors {
		scores[i] = scored{ordinal: i, score: utils.InnerProduct(query, vec)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].ordinal < scores[j].ordinal
	})

	if topK > len(scores) {
		topK = len(scores)
	}
	hits := make([]SearchHit, topK)
	for i := 0; i < topK; i++ {
		hits[i] = SearchHit{DocID: idx.ids[scores[i].ordinal], Score: scores[i].score}
	}
	return hits, nil
}

// DocID returns the document id at the given ordinal.
func (idx *Index) DocID(ordinal int) (string, bool) {
	if ordinal < 0 || ordinal >= len(idx.ids) {
		return "", false
	}
	return idx.ids[ordinal], true
}

// Size returns the number of vectors in the index.
func (idx *Index) Size() int {
	return len(idx.ids)
}

// Dimensions returns the vector dimensionality (0 for an empty index).
func (idx *Index) Dimensions() int {
	return idx.dimensions
}

// Save persists the index to dir as two artifacts: vectors.bin (little-endian
// dimension, count, then flat float32 data) and idmap.json (doc ids in
// ordinal order). The two must always be loaded together.
func (idx *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(idx.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(idx.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range idx.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}

	data, err := json.MarshalIndent(idx.ids, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal id map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, idMapFile), data, 0644); err != nil {
		return fmt.Errorf("write id map: %w", err)
	}
	return nil
}

// Load reads an index from dir. Fails with ErrIndexCorrupt when the vector
// array and id map disagree on entry count.
func Load(dir string) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("open vectors file: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	data, err := os.ReadFile(filepath.Join(dir, idMapFile))
	if err != nil {
		return nil, fmt.Errorf("read id map: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse id map: %w", err)
	}

	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors but %d ids", ErrIndexCorrupt, len(vectors), len(ids))
	}

	return &Index{dimensions: int(dim), ids: ids, vectors: vectors}, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
