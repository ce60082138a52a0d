package postgres

import (
	"sort"
	"strings"
	"testing"

	"github.com/archon-research/multiread/internal/domain/entity"
)

// TestNewSnapshotRepository_NilPool tests that NewSnapshotRepository returns an error when pool is nil.
func TestNewSnapshotRepository_NilPool(t *testing.T) {
	_, err := NewSnapshotRepository(nil, nil, 0)
	if err == nil {
		t.Fatal("expected error when pool is nil, got nil")
	}
	expectedMsg := "database pool cannot be nil"
	if err.Error() != expectedMsg {
		t.Errorf("expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestFlattenSnapshots(t *testing.T) {
	rows, err := flattenSnapshots([]*entity.Snapshot{
		{Source: "rates", BlockNumber: 10, Fields: map[string]string{"a": "123", "b": entity.Unavailable}},
		{Source: "rates", BlockNumber: 11, Fields: map[string]string{}},
	})
	if err != nil {
		t.Fatalf("flattenSnapshots: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].field < rows[j].field })

	if rows[0].field != "a" || rows[0].value == nil || *rows[0].value != "123" || rows[0].blockNumber != 10 {
		t.Errorf("row a = %+v", rows[0])
	}
	if rows[1].field != "b" || rows[1].value != nil {
		t.Errorf("row b = %+v, want NULL value", rows[1])
	}
}

func TestFlattenSnapshots_Validation(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *entity.Snapshot
	}{
		{"nil snapshot", nil},
		{"missing source", &entity.Snapshot{BlockNumber: 1}},
		{"negative block", &entity.Snapshot{Source: "rates", BlockNumber: -1}},
		{"non-numeric value", &entity.Snapshot{Source: "rates", Fields: map[string]string{"a": "1.5"}}},
		{"empty value", &entity.Snapshot{Source: "rates", Fields: map[string]string{"a": ""}}},
		{"signed value", &entity.Snapshot{Source: "rates", Fields: map[string]string{"a": "-1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := flattenSnapshots([]*entity.Snapshot{tt.snapshot}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBuildInsert(t *testing.T) {
	v := "42"
	query, args := buildInsert([]snapshotRow{
		{source: "rates", blockNumber: 1, field: "a", value: &v},
		{source: "rates", blockNumber: 1, field: "b"},
	})

	if !strings.Contains(query, "($1, $2, $3, $4::numeric), ($5, $6, $7, $8::numeric)") {
		t.Errorf("unexpected placeholders in %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (source, block_number, field) DO NOTHING") {
		t.Errorf("missing conflict clause in %s", query)
	}
	if len(args) != 8 {
		t.Fatalf("got %d args, want 8", len(args))
	}
	if p, ok := args[7].(*string); !ok || p != nil {
		t.Errorf("args[7] = %v, want nil *string", args[7])
	}
}
