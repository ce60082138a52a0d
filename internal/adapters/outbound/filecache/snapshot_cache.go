// Package filecache implements outbound.SnapshotCache on a local directory.
// Each entry is one file named "<prefix>_<start>_<end>.json".
package filecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/archon-research/multiread/internal/pkg/cachename"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Compile-time check that SnapshotCache implements outbound.SnapshotCache
var _ outbound.SnapshotCache = (*SnapshotCache)(nil)

// SnapshotCache stores entries as JSON files in a directory.
type SnapshotCache struct {
	dir    string
	logger *slog.Logger
}

// NewSnapshotCache creates a cache rooted at dir, creating it if needed.
func NewSnapshotCache(dir string, logger *slog.Logger) (*SnapshotCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &SnapshotCache{
		dir:    dir,
		logger: logger.With("component", "file-snapshot-cache"),
	}, nil
}

// Find returns the first file, in name order, whose name parses as
// "<prefix>_<start>_<end>.json". Files with the prefix that do not fit the
// grammar are skipped.
func (c *SnapshotCache) Find(ctx context.Context, prefix string) (*outbound.CacheEntry, error) {
	if err := cachename.ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache directory %s: %w", c.dir, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		start, end, ok := cachename.Parse(e.Name(), prefix)
		if !ok {
			continue
		}

		path := filepath.Join(c.dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading cache file %s: %w", path, err)
		}
		if !json.Valid(content) {
			return nil, fmt.Errorf("cache file %s is not valid JSON", path)
		}

		c.logger.Debug("cache hit", "file", e.Name(), "start", start, "end", end)
		return &outbound.CacheEntry{Content: content, Start: start, End: end}, nil
	}

	return nil, nil
}

// Store writes content as "<prefix>_<start>_<end>.json" and removes any
// other entry for prefix, so the next Find returns this one.
func (c *SnapshotCache) Store(ctx context.Context, prefix string, start, end int64, content json.RawMessage) error {
	if err := cachename.ValidatePrefix(prefix); err != nil {
		return err
	}
	if !json.Valid(content) {
		return errors.New("cache content is not valid JSON")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := cachename.Format(prefix, start, end)
	tmp, err := os.CreateTemp(c.dir, "."+prefix+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("listing cache directory %s: %w", c.dir, err)
	}
	for _, e := range entries {
		if e.Name() == name {
			continue
		}
		if _, _, ok := cachename.Parse(e.Name(), prefix); ok {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
				c.logger.Warn("failed to remove stale cache file", "file", e.Name(), "error", err)
			}
		}
	}

	c.logger.Debug("cache stored", "file", name)
	return nil
}
