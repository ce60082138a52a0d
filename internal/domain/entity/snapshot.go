// Package entity contains the domain types shared by services and adapters.
package entity

// Unavailable is the field value recorded for a read whose subcall failed.
const Unavailable = "unavailable"

// Snapshot holds the values read from a set of contracts at one block.
// Values are exact decimal strings or Unavailable.
type Snapshot struct {
	// Source names the market set the snapshot was taken from.
	Source string `json:"source"`

	// BlockNumber is the block the reads were pinned to.
	BlockNumber int64 `json:"blockNumber"`

	// Fields maps field labels to values.
	Fields map[string]string `json:"fields"`
}

// Available reports whether the field exists and its subcall succeeded.
func (s *Snapshot) Available(field string) bool {
	v, ok := s.Fields[field]
	return ok && v != Unavailable
}
