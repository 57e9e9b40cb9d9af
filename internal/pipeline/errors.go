package pipeline

import "errors"

// ErrInvalidArgument reports a caller mistake such as a non-positive top-k.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrIndexNotBuilt reports that a query arrived before any index build
// completed.
var ErrIndexNotBuilt = errors.New("index not built")
