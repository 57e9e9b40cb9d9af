package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hikawa/kensaku/internal/models"
)

// MemoryStore is an in-memory Store for tests and ephemeral setups.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*models.Document)}
}

// Put inserts or replaces a document.
func (s *MemoryStore) Put(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.docs[cp.ID] = &cp
	return nil
}

// Get returns a document by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *doc
	return &cp, nil
}

// GetText returns the raw text of a document by ID.
func (s *MemoryStore) GetText(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// GetAll returns all documents ordered by ID.
func (s *MemoryStore) GetAll(ctx context.Context) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		cp := *doc
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Delete removes a document by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Count returns the total number of documents.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
