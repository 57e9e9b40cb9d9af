package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hikawa/kensaku/pkg/utils"
)

// CacheEntry is a persisted embedding keyed by document ID and content hash.
// The hash always corresponds to the text the embedding was computed from;
// a stale entry (hash mismatch) is never reused.
type CacheEntry struct {
	DocID       string    `json:"doc_id"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cache is a content-addressed embedding cache. It avoids recomputation when
// document text is unchanged and persists to a JSON file. Writes are
// serialized per document ID; reads are concurrent.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry

	lockMu   sync.Mutex
	docLocks map[string]*sync.Mutex

	logger *zap.Logger // optional; when set, logs load warnings
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets a logger for load/save warnings.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:  make(map[string]*CacheEntry),
		docLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HashText returns the SHA-256 hex digest of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedFunc computes an embedding for text. Typically Embedder.Embed.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// GetOrCompute returns the cached embedding for docID when the content hash of
// text matches the stored entry. Otherwise it calls embedFn, normalizes the
// result, overwrites the entry, and returns the new embedding. Concurrent
// calls for the same docID compute at most once; calls for different IDs do
// not contend on the embedding computation.
func (c *Cache) GetOrCompute(ctx context.Context, docID, text string, embedFn EmbedFunc) ([]float32, error) {
	hash := HashText(text)

	c.mu.RLock()
	if e, ok := c.entries[docID]; ok && e.ContentHash == hash {
		emb := e.Embedding
		c.mu.RUnlock()
		return emb, nil
	}
	c.mu.RUnlock()

	lock := c.docLock(docID)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have computed this entry while we waited.
	c.mu.RLock()
	if e, ok := c.entries[docID]; ok && e.ContentHash == hash {
		emb := e.Embedding
		c.mu.RUnlock()
		return emb, nil
	}
	c.mu.RUnlock()

	vec, err := embedFn(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{DocID: docID, Err: err}
	}
	emb := make([]float32, len(vec))
	copy(emb, vec)
	utils.NormalizeL2(emb)

	c.mu.Lock()
	c.entries[docID] = &CacheEntry{
		DocID:       docID,
		ContentHash: hash,
		Embedding:   emb,
		UpdatedAt:   time.Now(),
	}
	c.mu.Unlock()
	return emb, nil
}

func (c *Cache) docLock(docID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.docLocks[docID]
	if !ok {
		l = &sync.Mutex{}
		c.docLocks[docID] = l
	}
	return l
}

// Entry returns the cache entry for docID, if present.
func (c *Cache) Entry(docID string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[docID]
	return e, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all cached entries. Persisted state is unaffected until Save.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CacheEntry)
}

// Load reads the cache from a JSON file at path, replacing in-memory contents.
// A missing or unparsable file yields an empty cache (reported as a warning,
// never an error); individual invalid entries are skipped with a warning.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Clear()
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}

	var raw map[string]*CacheEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		if c.logger != nil {
			c.logger.Warn("embedding cache corrupt, starting empty", zap.String("path", path), zap.Error(err))
		}
		c.Clear()
		return nil
	}

	entries := make(map[string]*CacheEntry, len(raw))
	skipped := 0
	for docID, e := range raw {
		if e == nil || e.ContentHash == "" || len(e.Embedding) == 0 {
			skipped++
			continue
		}
		e.DocID = docID
		entries[docID] = e
	}
	if skipped > 0 && c.logger != nil {
		c.logger.Warn("skipped corrupt cache entries", zap.Int("skipped", skipped), zap.String("path", path))
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Save writes all entries to a JSON file at path. The file is written to a
// temporary sibling and renamed so a crash mid-write never leaves a partial
// store. Parent directories are created if needed.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
