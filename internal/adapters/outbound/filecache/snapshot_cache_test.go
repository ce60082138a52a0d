package filecache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) (*SnapshotCache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := NewSnapshotCache(dir, nil)
	if err != nil {
		t.Fatalf("NewSnapshotCache: %v", err)
	}
	return c, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestFind_Absent(t *testing.T) {
	c, _ := newTestCache(t)

	entry, err := c.Find(context.Background(), "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry != nil {
		t.Errorf("entry = %+v, want nil", entry)
	}
}

func TestFind_ParsesRangeFromName(t *testing.T) {
	c, dir := newTestCache(t)
	writeFile(t, dir, "rates_100_200.json", `{"a":"1"}`)

	entry, err := c.Find(context.Background(), "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry == nil {
		t.Fatal("entry = nil, want hit")
	}
	if entry.Start != 100 || entry.End != 200 {
		t.Errorf("range = %d..%d, want 100..200", entry.Start, entry.End)
	}
	if string(entry.Content) != `{"a":"1"}` {
		t.Errorf("content = %s", entry.Content)
	}
}

func TestFind_SkipsNonMatchingNames(t *testing.T) {
	c, dir := newTestCache(t)
	writeFile(t, dir, "rates_100.json", `{}`)
	writeFile(t, dir, "rates_1_2_3.json", `{}`)
	writeFile(t, dir, "rates_a_b.json", `{}`)
	writeFile(t, dir, "rates_1_2.txt", `{}`)
	writeFile(t, dir, "ratesx_1_2.json", `{}`)
	writeFile(t, dir, "other_1_2.json", `{}`)

	entry, err := c.Find(context.Background(), "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry != nil {
		t.Errorf("entry = %+v, want nil", entry)
	}
}

func TestFind_FirstMatchWins(t *testing.T) {
	c, dir := newTestCache(t)
	writeFile(t, dir, "rates_300_400.json", `{"n":2}`)
	writeFile(t, dir, "rates_100_200.json", `{"n":1}`)

	entry, err := c.Find(context.Background(), "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry == nil || entry.Start != 100 {
		t.Errorf("entry = %+v, want the 100..200 file", entry)
	}
}

func TestFind_InvalidJSON(t *testing.T) {
	c, dir := newTestCache(t)
	writeFile(t, dir, "rates_1_2.json", `{not json`)

	if _, err := c.Find(context.Background(), "rates"); err == nil {
		t.Error("expected error for invalid JSON content")
	}
}

func TestStore_ReplacesPreviousEntry(t *testing.T) {
	c, dir := newTestCache(t)
	ctx := context.Background()

	if err := c.Store(ctx, "rates", 1, 2, json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(ctx, "rates", 10, 20, json.RawMessage(`{"v":2}`)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	writeFile(t, dir, "other_1_2.json", `{}`)

	entry, err := c.Find(ctx, "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry == nil || entry.Start != 10 || entry.End != 20 || string(entry.Content) != `{"v":2}` {
		t.Errorf("entry = %+v, want the second store", entry)
	}

	if _, err := os.Stat(filepath.Join(dir, "rates_1_2.json")); !os.IsNotExist(err) {
		t.Errorf("stale entry still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "other_1_2.json")); err != nil {
		t.Errorf("entry for another prefix was removed: %v", err)
	}
}

func TestStore_Validation(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		prefix  string
		content string
	}{
		{"empty prefix", "", `{}`},
		{"underscore in prefix", "supply_rates", `{}`},
		{"path in prefix", "../x", `{}`},
		{"invalid JSON", "rates", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Store(ctx, tt.prefix, 1, 2, json.RawMessage(tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
