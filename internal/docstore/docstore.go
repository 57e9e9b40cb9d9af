// Package docstore defines document persistence for the retrieval pipeline.
package docstore

import (
	"context"
	"errors"

	"github.com/hikawa/kensaku/internal/models"
)

// ErrNotFound is returned by Get and GetText when no document exists for the
// given ID.
var ErrNotFound = errors.New("document not found")

// Store defines document persistence operations. GetAll returns documents
// ordered by ID so that index ordinals are stable across rebuilds of an
// unchanged corpus.
type Store interface {
	Put(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	GetText(ctx context.Context, id string) (string, error)
	GetAll(ctx context.Context) ([]*models.Document, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	Close() error
}
