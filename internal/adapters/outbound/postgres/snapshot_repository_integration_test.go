//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/multiread/internal/domain/entity"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithSQLDriver("pgx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	cfg := DefaultDBConfig(dsn)
	cfg.MinConns = 1
	var pool *pgxpool.Pool
	for i := 0; i < 30; i++ {
		if pool, err = OpenPool(ctx, cfg); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return pool
}

func TestSnapshotRepository_SaveAndGet(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	repo, err := NewSnapshotRepository(pool, nil, 2)
	if err != nil {
		t.Fatalf("NewSnapshotRepository: %v", err)
	}

	snap := &entity.Snapshot{
		Source:      "rates",
		BlockNumber: 16400000,
		Fields: map[string]string{
			"0xaaa.supplyRatePerBlock": "123456",
			"0xaaa.totalSupply":        "115792089237316195423570985008687907853269984665640564039457584007913129639935",
			"0xbbb.supplyRatePerBlock": entity.Unavailable,
		},
	}
	if err := repo.SaveSnapshots(ctx, []*entity.Snapshot{snap}); err != nil {
		t.Fatalf("SaveSnapshots: %v", err)
	}

	got, err := repo.GetSnapshot(ctx, "rates", 16400000)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("GetSnapshot returned nil")
	}
	for k, want := range snap.Fields {
		if got.Fields[k] != want {
			t.Errorf("field %s = %q, want %q", k, got.Fields[k], want)
		}
	}

	// Re-saving the same block leaves the stored values untouched.
	changed := &entity.Snapshot{Source: "rates", BlockNumber: 16400000, Fields: map[string]string{"0xaaa.supplyRatePerBlock": "1"}}
	if err := repo.SaveSnapshots(ctx, []*entity.Snapshot{changed}); err != nil {
		t.Fatalf("SaveSnapshots: %v", err)
	}
	got, err = repo.GetSnapshot(ctx, "rates", 16400000)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got.Fields["0xaaa.supplyRatePerBlock"] != "123456" {
		t.Errorf("value overwritten: %s", got.Fields["0xaaa.supplyRatePerBlock"])
	}
}

func TestSnapshotRepository_GetMissing(t *testing.T) {
	pool := setupPostgres(t)

	repo, err := NewSnapshotRepository(pool, nil, 0)
	if err != nil {
		t.Fatalf("NewSnapshotRepository: %v", err)
	}

	got, err := repo.GetSnapshot(context.Background(), "rates", 1)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}
