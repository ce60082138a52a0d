package redis

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewSnapshotCache_CreatesWithConfig(t *testing.T) {
	cfg := Config{
		Addr:      "localhost:6379",
		Password:  "secret",
		DB:        1,
		TTL:       1 * time.Hour,
		KeyPrefix: "test",
	}

	cache, err := NewSnapshotCache(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if cache.ttl != cfg.TTL {
		t.Errorf("expected TTL=%v, got %v", cfg.TTL, cache.ttl)
	}
	if cache.keyPrefix != cfg.KeyPrefix {
		t.Errorf("expected keyPrefix=%s, got %s", cfg.KeyPrefix, cache.keyPrefix)
	}
	if cache.client == nil {
		t.Fatal("expected client, got nil")
	}
	if cache.logger == nil {
		t.Fatal("expected logger, got nil")
	}
}

func TestNewSnapshotCache_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty addr", Config{}, "redis address is required"},
		{"negative ttl", Config{Addr: "localhost:6379", TTL: -time.Second}, "ttl must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshotCache(tt.cfg, nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigDefaults_ReturnsDefaults(t *testing.T) {
	defaults := ConfigDefaults()

	if defaults.Addr != "localhost:6379" {
		t.Errorf("expected Addr=localhost:6379, got %s", defaults.Addr)
	}
	if defaults.DB != 0 {
		t.Errorf("expected DB=0, got %d", defaults.DB)
	}
	if defaults.TTL != 7*24*time.Hour {
		t.Errorf("expected TTL=168h, got %v", defaults.TTL)
	}
	if defaults.KeyPrefix != "multiread" {
		t.Errorf("expected KeyPrefix=multiread, got %s", defaults.KeyPrefix)
	}
}

func TestSnapshotCache_KeyFormat(t *testing.T) {
	tests := []struct {
		keyPrefix string
		prefix    string
		expected  string
	}{
		{"test", "rates", "test:snapshot:rates"},
		{"", "rates", "snapshot:rates"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			cache, err := NewSnapshotCache(Config{Addr: "localhost:6379", KeyPrefix: tt.keyPrefix}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer cache.Close()

			if got := cache.key(tt.prefix); got != tt.expected {
				t.Errorf("expected key=%s, got %s", tt.expected, got)
			}
		})
	}
}

func TestSnapshotCache_RejectsInvalidPrefix(t *testing.T) {
	cache, err := NewSnapshotCache(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	for _, prefix := range []string{"", "supply_rates"} {
		if _, err := cache.Find(ctx, prefix); err == nil {
			t.Errorf("Find(%q): expected error", prefix)
		}
		if err := cache.Store(ctx, prefix, 1, 2, json.RawMessage(`{}`)); err == nil {
			t.Errorf("Store(%q): expected error", prefix)
		}
	}
}

func TestEnvelope_RoundTripsRawContent(t *testing.T) {
	content := json.RawMessage(`{"100":{"a":"1"}}`)
	data, err := json.Marshal(envelope{Start: 100, End: 200, Content: content})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Start != 100 || env.End != 200 || string(env.Content) != string(content) {
		t.Errorf("envelope = %+v", env)
	}
}
