// Package cachename defines the "<prefix>_<start>_<end>.json" naming grammar
// shared by the snapshot cache backends.
package cachename

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Ext is the extension of every cache entry name.
const Ext = ".json"

// ValidatePrefix rejects prefixes that would break the grammar.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return errors.New("cache prefix is required")
	}
	if strings.ContainsAny(prefix, "_/\\") {
		return fmt.Errorf("cache prefix %q must not contain '_' or path separators", prefix)
	}
	return nil
}

// Format returns "<prefix>_<start>_<end>.json".
func Format(prefix string, start, end int64) string {
	return fmt.Sprintf("%s_%d_%d%s", prefix, start, end, Ext)
}

// Parse parses an entry name for prefix. It requires exactly three
// '_'-separated parts, the first equal to prefix and the last ending in
// ".json", with integer start and end.
func Parse(name, prefix string) (start, end int64, ok bool) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 || parts[0] != prefix || !strings.HasSuffix(parts[2], Ext) {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end, err = strconv.ParseInt(strings.TrimSuffix(parts[2], Ext), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}
