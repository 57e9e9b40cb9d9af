// Package ingest loads plain-text documents into the document store,
// cleaning text on the way in.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/models"
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// CleanText normalizes raw document text: HTML tags become spaces, the text
// is lowercased, and runs of whitespace collapse to a single space.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// FileDocID derives a stable document id from a file path: the base name
// without extension, so re-ingesting the same file updates the same document.
func FileDocID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ingester writes cleaned documents into the document store.
type Ingester struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewIngester creates an Ingester on top of store.
func NewIngester(store docstore.Store, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{store: store, logger: logger}
}

// AddDocument cleans and stores one document. An empty input ID gets a
// generated uuid. Documents whose text cleans to empty are rejected.
func (in *Ingester) AddDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	text := CleanText(input.Text)
	if text == "" {
		return nil, fmt.Errorf("document %q has no text after cleaning", input.ID)
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	doc := &models.Document{
		ID:        id,
		Title:     input.Title,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := in.store.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document %s: %w", id, err)
	}
	in.logger.Debug("document ingested", zap.String("doc_id", id), zap.Int("chars", len(text)))
	return doc, nil
}

// IngestFile reads a plain-text file and stores it under an id derived from
// its file name stem.
func (in *Ingester) IngestFile(ctx context.Context, path string) (*models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return in.AddDocument(ctx, &models.DocumentInput{
		ID:    FileDocID(path),
		Title: filepath.Base(path),
		Text:  string(data),
	})
}

// IngestDir walks root and ingests every regular file whose extension is in
// allowedExts (all files when the list is empty). Files that fail to ingest
// are logged and skipped. Returns the number of documents stored.
func (in *Ingester) IngestDir(ctx context.Context, root string, allowedExts []string, recursive bool) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		if _, err := in.IngestFile(ctx, path); err != nil {
			in.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walk %s: %w", root, err)
	}
	return count, nil
}

// RemoveFile deletes the document previously ingested from path.
func (in *Ingester) RemoveFile(ctx context.Context, path string) error {
	return in.store.Delete(ctx, FileDocID(path))
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}
