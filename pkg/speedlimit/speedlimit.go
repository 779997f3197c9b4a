// Package speedlimit resolves posted speed limits from GPS coordinates
// against a pre-built, read-only SQLite dataset. Lookups are two-tier:
// a grid-indexed neighborhood search with a bounding-box containment
// filter, falling back to a fixed-width window scan over segment
// centers when the grid index misses.
package speedlimit

import "errors"

// Initialization failure classes. A Session is never returned
// half-built; any of these aborts Open entirely.
var (
	// ErrDatasetOpen means the read-only dataset handle could not be acquired.
	ErrDatasetOpen = errors.New("dataset open failed")

	// ErrMetadata means the bounds metadata is missing or malformed.
	ErrMetadata = errors.New("dataset metadata missing or malformed")

	// ErrQueryPrepare means a lookup statement could not be prepared
	// against the dataset schema.
	ErrQueryPrepare = errors.New("query preparation failed")
)

// Source identifies which resolution tier produced a result.
type Source int

const (
	SourceNone Source = iota
	SourceGrid
	SourceWindow
)

func (s Source) String() string {
	switch s {
	case SourceGrid:
		return "grid"
	case SourceWindow:
		return "window"
	default:
		return "none"
	}
}

// Result is the outcome of a single lookup. Found is false when no
// matching segment exists; that is a normal outcome, not an error.
type Result struct {
	SpeedLimit int    // km/h, valid only when Found
	Found      bool
	Source     Source
}
