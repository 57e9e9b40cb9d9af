package embedding

import "fmt"

// EmbeddingError reports a per-document embedding failure. Callers may skip
// the document and continue a batch build.
type EmbeddingError struct {
	DocID string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed for document %s: %v", e.DocID, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
