package vector

import "sync/atomic"

// Ref holds the live index reference. Rebuilds construct a fresh Index and
// Swap it in; concurrent readers keep the snapshot they loaded and never see
// a partially built structure.
type Ref struct {
	p atomic.Pointer[Index]
}

// NewRef creates a Ref holding idx (may be nil for a not-yet-built index).
func NewRef(idx *Index) *Ref {
	r := &Ref{}
	if idx != nil {
		r.p.Store(idx)
	}
	return r
}

// Load returns the current live index, or nil when none has been built.
func (r *Ref) Load() *Index {
	return r.p.Load()
}

// Swap atomically replaces the live index.
func (r *Ref) Swap(idx *Index) {
	r.p.Store(idx)
}
