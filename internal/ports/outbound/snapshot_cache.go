package outbound

import (
	"context"
	"encoding/json"
)

// CacheEntry is a cached result covering the block range [Start, End].
type CacheEntry struct {
	Content json.RawMessage
	Start   int64
	End     int64
}

// SnapshotCache stores previously computed results keyed by a name prefix
// and the block range they cover. Backends lay entries out as
// "<prefix>_<start>_<end>.json", so prefixes must not contain '_'.
type SnapshotCache interface {
	// Find returns the first entry stored under prefix.
	// Returns nil, nil if no entry exists.
	Find(ctx context.Context, prefix string) (*CacheEntry, error)

	// Store saves content under prefix for the range [start, end].
	Store(ctx context.Context, prefix string, start, end int64, content json.RawMessage) error
}
