package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/multiread/internal/domain/entity"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Compile-time check that SnapshotRepository implements outbound.SnapshotRepository.
var _ outbound.SnapshotRepository = (*SnapshotRepository)(nil)

const snapshotColumns = 4

// SnapshotRepository is a PostgreSQL implementation of the outbound.SnapshotRepository port.
// Each snapshot field is one row; Unavailable values are stored as NULL.
type SnapshotRepository struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	batchSize int
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository.
// If batchSize is <= 0, a default batch size of 1000 rows is used.
func NewSnapshotRepository(pool *pgxpool.Pool, logger *slog.Logger, batchSize int) (*SnapshotRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &SnapshotRepository{
		pool:      pool,
		logger:    logger.With("component", "snapshot-repository"),
		batchSize: batchSize,
	}, nil
}

type snapshotRow struct {
	source      string
	blockNumber int64
	field       string
	value       *string
}

// flattenSnapshots converts snapshots to rows, validating each one.
func flattenSnapshots(snapshots []*entity.Snapshot) ([]snapshotRow, error) {
	var rows []snapshotRow
	for _, s := range snapshots {
		if s == nil {
			return nil, errors.New("snapshot cannot be nil")
		}
		if s.Source == "" {
			return nil, fmt.Errorf("snapshot at block %d has no source", s.BlockNumber)
		}
		if s.BlockNumber < 0 {
			return nil, fmt.Errorf("snapshot %s has negative block %d", s.Source, s.BlockNumber)
		}
		for field, v := range s.Fields {
			row := snapshotRow{source: s.Source, blockNumber: s.BlockNumber, field: field}
			if v != entity.Unavailable {
				value, err := validateNumeric(v)
				if err != nil {
					return nil, fmt.Errorf("snapshot %s block %d field %s: %w", s.Source, s.BlockNumber, field, err)
				}
				row.value = &value
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// validateNumeric checks that v is a non-negative decimal integer.
func validateNumeric(v string) (string, error) {
	if v == "" {
		return "", errors.New("empty value")
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("value %q is not a decimal integer", v)
		}
	}
	return v, nil
}

// SaveSnapshots inserts snapshot rows in batches inside one transaction.
// Uses ON CONFLICT DO NOTHING so re-saving a block is a no-op.
func (r *SnapshotRepository) SaveSnapshots(ctx context.Context, snapshots []*entity.Snapshot) error {
	rows, err := flattenSnapshots(snapshots)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(ctx, tx, r.logger)

	for i := 0; i < len(rows); i += r.batchSize {
		end := min(i+r.batchSize, len(rows))
		if err := r.insertBatch(ctx, tx, rows[i:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	r.logger.Debug("saved snapshots", "snapshots", len(snapshots), "rows", len(rows))
	return nil
}

func (r *SnapshotRepository) insertBatch(ctx context.Context, tx pgx.Tx, rows []snapshotRow) error {
	query, args := buildInsert(rows)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting snapshot batch: %w", err)
	}
	return nil
}

// buildInsert renders a multi-row INSERT for rows.
func buildInsert(rows []snapshotRow) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO market_snapshot_field (source, block_number, field, value)
		VALUES `)

	args := make([]any, 0, len(rows)*snapshotColumns)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		baseIdx := i * snapshotColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d::numeric)", baseIdx+1, baseIdx+2, baseIdx+3, baseIdx+4)
		args = append(args, row.source, row.blockNumber, row.field, row.value)
	}

	sb.WriteString(` ON CONFLICT (source, block_number, field) DO NOTHING`)
	return sb.String(), args
}

// GetSnapshot returns the snapshot stored for source at blockNumber.
// Returns nil, nil if no rows exist.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, source string, blockNumber int64) (*entity.Snapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT field, value::text
		FROM market_snapshot_field
		WHERE source = $1 AND block_number = $2
		ORDER BY field
	`, source, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot %s at block %d: %w", source, blockNumber, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field string
		var value *string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scanning snapshot field: %w", err)
		}
		if value == nil {
			fields[field] = entity.Unavailable
		} else {
			fields[field] = *value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot fields: %w", err)
	}

	if len(fields) == 0 {
		return nil, nil
	}
	return &entity.Snapshot{Source: source, BlockNumber: blockNumber, Fields: fields}, nil
}

func rollback(ctx context.Context, tx pgx.Tx, logger *slog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error("failed to rollback transaction", "error", err)
	}
}
