//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T, cfg Config) *SnapshotCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg.Addr = fmt.Sprintf("%s:%s", host, port.Port())
	cache, err := NewSnapshotCache(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	for i := 0; i < 30; i++ {
		if err = cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	return cache
}

func TestSnapshotCache_StoreAndFind(t *testing.T) {
	cache := setupRedis(t, Config{TTL: time.Hour, KeyPrefix: "test"})
	ctx := context.Background()

	entry, err := cache.Find(ctx, "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected miss, got %+v", entry)
	}

	if err := cache.Store(ctx, "rates", 100, 200, json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := cache.Store(ctx, "rates", 300, 400, json.RawMessage(`{"v":2}`)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, err = cache.Find(ctx, "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry == nil || entry.Start != 300 || entry.End != 400 || string(entry.Content) != `{"v":2}` {
		t.Errorf("entry = %+v, want the second store", entry)
	}

	ttl, err := cache.client.TTL(ctx, cache.key("rates")).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("ttl = %v, want (0, 1h]", ttl)
	}
}

func TestSnapshotCache_EntriesExpire(t *testing.T) {
	cache := setupRedis(t, Config{TTL: time.Second, KeyPrefix: "test"})
	ctx := context.Background()

	if err := cache.Store(ctx, "rates", 1, 2, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	entry, err := cache.Find(ctx, "rates")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry != nil {
		t.Errorf("expected expired entry, got %+v", entry)
	}
}
