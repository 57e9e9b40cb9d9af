package vector

import (
	"errors"
	"fmt"
)

// ErrIndexCorrupt reports that the persisted vector array and id map disagree
// and cannot be loaded together. The caller should rebuild the index.
var ErrIndexCorrupt = errors.New("vector index corrupt")

// DimensionMismatchError reports an embedding whose dimensionality differs
// from the rest of the index. Fatal at build time.
type DimensionMismatchError struct {
	DocID string
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("dimension mismatch for document %s: got %d, expected %d", e.DocID, e.Got, e.Want)
	}
	return fmt.Sprintf("dimension mismatch: got %d, expected %d", e.Got, e.Want)
}
