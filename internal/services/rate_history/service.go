// Package rate_history collects supply rate snapshots of a set of lending
// markets across the last year of blocks. Every snapshot is a single
// aggregator batch pinned to one block; snapshots at different blocks run
// concurrently up to a fixed limit.
package rate_history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/multiread/internal/domain/entity"
	"github.com/archon-research/multiread/internal/pkg/blockchain/multicall"
	"github.com/archon-research/multiread/internal/pkg/cachename"
	"github.com/archon-research/multiread/internal/pkg/partition"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Config holds configuration for the rate history service.
type Config struct {
	// Source names the market set. It is the cache prefix and the
	// repository source, so it must not contain '_'.
	Source string

	// Points is the number of blocks sampled between the year-old block and the head.
	Points int

	// Concurrency bounds the number of snapshots in flight.
	Concurrency int

	// BlockTime is the average block interval used to estimate the year-old block.
	BlockTime time.Duration

	// Lookback is how far back the history reaches.
	Lookback time.Duration

	// Aggregator answers the block accessors when the multicaller does not
	// go through an aggregator of its own. Defaults to multicall.DefaultAddress.
	Aggregator common.Address

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		Source:      "supplyrates",
		Points:      10,
		Concurrency: 4,
		BlockTime:   13 * time.Second,
		Lookback:    partition.Year,
		Aggregator:  multicall.DefaultAddress,
		Logger:      slog.Default(),
	}
}

// History is the result of one history run.
type History struct {
	StartBlock int64              `json:"startBlock"`
	EndBlock   int64              `json:"endBlock"`
	Snapshots  []*entity.Snapshot `json:"snapshots"`
	Cached     bool               `json:"-"`
}

// Service reads market snapshots through a Multicaller.
type Service struct {
	config      Config
	markets     Markets
	multicaller outbound.Multicaller
	head        outbound.BlockNumberReader
	cache       outbound.SnapshotCache
	repo        outbound.SnapshotRepository

	logger *slog.Logger
}

// NewService creates a new rate history service. cache and repo are optional.
func NewService(
	config Config,
	markets Markets,
	multicaller outbound.Multicaller,
	head outbound.BlockNumberReader,
	cache outbound.SnapshotCache,
	repo outbound.SnapshotRepository,
) (*Service, error) {
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	if head == nil {
		return nil, fmt.Errorf("head reader cannot be nil")
	}
	if len(markets.Markets) == 0 {
		return nil, fmt.Errorf("at least one market is required")
	}
	if markets.RewardSymbol == "" {
		return nil, fmt.Errorf("reward symbol is required")
	}

	defaults := configDefaults()
	if config.Source == "" {
		config.Source = defaults.Source
	}
	if config.Points <= 0 {
		config.Points = defaults.Points
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.BlockTime <= 0 {
		config.BlockTime = defaults.BlockTime
	}
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if config.Aggregator == (common.Address{}) {
		config.Aggregator = defaults.Aggregator
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if err := cachename.ValidatePrefix(config.Source); err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}

	return &Service{
		config:      config,
		markets:     markets,
		multicaller: multicaller,
		head:        head,
		cache:       cache,
		repo:        repo,
		logger:      config.Logger.With("component", "rate-history"),
	}, nil
}

// Snapshot reads every field of the market set at blockNumber in one batch.
// Failed subcalls are recorded as entity.Unavailable.
func (s *Service) Snapshot(ctx context.Context, blockNumber int64) (*entity.Snapshot, error) {
	if blockNumber < 0 {
		return nil, fmt.Errorf("block number must be >= 0, got %d", blockNumber)
	}

	// Multicallers that do not go through an aggregator report the zero
	// address; the block accessors are then read from the configured one.
	aggregator := s.multicaller.Address()
	if aggregator == (common.Address{}) {
		aggregator = s.config.Aggregator
	}

	requests := s.markets.Requests(aggregator)
	values, err := multicall.ReadFields(ctx, s.multicaller, requests, big.NewInt(blockNumber), s.logger)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot at block %d: %w", blockNumber, err)
	}

	return &entity.Snapshot{
		Source:      s.config.Source,
		BlockNumber: blockNumber,
		Fields:      multicall.Strings(values),
	}, nil
}

// Range returns the first and last block of the history window ending at
// the current head. The first block is clamped at genesis.
func (s *Service) Range(ctx context.Context) (int64, int64, error) {
	head, err := s.head.BlockNumber(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("getting latest block: %w", err)
	}
	end := int64(head)
	start := max(partition.EstimateBlockAtAge(end, s.config.BlockTime, s.config.Lookback), 0)
	return start, end, nil
}

// History returns snapshots at evenly spaced blocks over the lookback
// window, ordered by block. A cached history is returned without touching
// the chain; a fresh one is persisted and cached.
func (s *Service) History(ctx context.Context) (*History, error) {
	if cached, err := s.fromCache(ctx); err != nil {
		s.logger.Warn("ignoring unreadable cache entry", "source", s.config.Source, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	start, end, err := s.Range(ctx)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.Snapshots(ctx, partition.SplitInterval(start, end, s.config.Points))
	if err != nil {
		return nil, err
	}

	if s.repo != nil {
		if err := s.repo.SaveSnapshots(ctx, snapshots); err != nil {
			return nil, fmt.Errorf("saving snapshots: %w", err)
		}
	}

	h := &History{StartBlock: start, EndBlock: end, Snapshots: snapshots}
	s.toCache(ctx, h)
	return h, nil
}

// Snapshots reads one snapshot per block concurrently. Results keep the
// order of blocks; the first batch-level error cancels the rest.
func (s *Service) Snapshots(ctx context.Context, blocks []int64) ([]*entity.Snapshot, error) {
	snapshots := make([]*entity.Snapshot, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for i, block := range blocks {
		g.Go(func() error {
			started := time.Now()
			snap, err := s.Snapshot(gctx, block)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			s.logger.Debug("snapshot read", "block", block, "fields", len(snap.Fields), "duration", time.Since(started))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("snapshots read", "source", s.config.Source, "count", len(snapshots))
	return snapshots, nil
}

func (s *Service) fromCache(ctx context.Context) (*History, error) {
	if s.cache == nil {
		return nil, nil
	}

	entry, err := s.cache.Find(ctx, s.config.Source)
	if err != nil || entry == nil {
		return nil, err
	}

	var snapshots []*entity.Snapshot
	if err := json.Unmarshal(entry.Content, &snapshots); err != nil {
		return nil, fmt.Errorf("decoding cached snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, errors.New("cached history is empty")
	}

	s.logger.Info("using cached history", "source", s.config.Source, "start", entry.Start, "end", entry.End)
	return &History{StartBlock: entry.Start, EndBlock: entry.End, Snapshots: snapshots, Cached: true}, nil
}

func (s *Service) toCache(ctx context.Context, h *History) {
	if s.cache == nil {
		return
	}

	content, err := json.Marshal(h.Snapshots)
	if err != nil {
		s.logger.Warn("failed to encode history for cache", "error", err)
		return
	}
	if err := s.cache.Store(ctx, s.config.Source, h.StartBlock, h.EndBlock, content); err != nil {
		s.logger.Warn("failed to cache history", "source", s.config.Source, "error", err)
	}
}
