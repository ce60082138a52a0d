package multicall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

const instrumentationName = "github.com/archon-research/multiread/internal/pkg/blockchain/multicall"

// Compile-time check that Client implements outbound.Multicaller
var _ outbound.Multicaller = (*Client)(nil)

// Config holds configuration for the aggregator client.
type Config struct {
	// Address of the aggregator contract. Defaults to DefaultAddress.
	Address common.Address

	// RequireSuccess makes the aggregator revert the whole batch when any
	// subcall fails. Off by default so failures degrade single fields.
	RequireSuccess bool

	// MaxCalldataSize bounds each subcall's calldata in bytes. When 0 the
	// transport's own limit is used if it declares one.
	MaxCalldataSize int

	// Metrics, when set, records every round trip.
	Metrics outbound.BatchMetrics

	Logger *slog.Logger
}

// Client sends batches to the aggregator contract through a Transport.
// It holds no per-batch state and is safe for concurrent use.
type Client struct {
	transport       outbound.Transport
	address         common.Address
	requireSuccess  bool
	maxCalldataSize int
	metrics         outbound.BatchMetrics
	tracer          trace.Tracer
	logger          *slog.Logger
}

// NewClient creates an aggregator client.
func NewClient(transport outbound.Transport, cfg Config) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if cfg.MaxCalldataSize < 0 {
		return nil, fmt.Errorf("max calldata size must be >= 0, got %d", cfg.MaxCalldataSize)
	}
	if _, err := multicallABI(); err != nil {
		return nil, fmt.Errorf("failed to load multicall ABI: %w", err)
	}
	if cfg.Address == (common.Address{}) {
		cfg.Address = DefaultAddress
	}
	if cfg.MaxCalldataSize == 0 {
		if limiter, ok := transport.(outbound.CalldataLimiter); ok {
			cfg.MaxCalldataSize = limiter.MaxCalldataSize()
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		transport:       transport,
		address:         cfg.Address,
		requireSuccess:  cfg.RequireSuccess,
		maxCalldataSize: cfg.MaxCalldataSize,
		metrics:         cfg.Metrics,
		tracer:          otel.Tracer(instrumentationName),
		logger:          cfg.Logger.With("component", "multicall"),
	}, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

// Execute sends all calls in one tryAggregate round trip and returns their
// results in call order.
func (c *Client) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	ctx, span := c.tracer.Start(ctx, "multicall.tryAggregate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("multicall.address", c.address.Hex()),
			attribute.String("multicall.block", blockNumberString(blockNumber)),
			attribute.Int("multicall.calls", len(calls)),
		),
	)
	defer span.End()

	start := time.Now()
	results, err := c.execute(ctx, calls, blockNumber)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if c.metrics != nil {
		c.metrics.RecordBatch(ctx, len(calls), failed, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("multicall.failed", failed))
	return results, nil
}

func (c *Client) execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	data, err := BuildBatchCalldata(calls, c.requireSuccess, c.maxCalldataSize)
	if err != nil {
		return nil, err
	}

	raw, err := c.transport.Call(ctx, c.address, data, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to call multicall contract at address=%s block=%s calls=%d: %w",
			c.address.Hex(), blockNumberString(blockNumber), len(calls), err)
	}

	results, err := DecodeBatchResult(raw, len(calls))
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multicall response at block=%s: %w",
			blockNumberString(blockNumber), err)
	}
	return results, nil
}

// Read runs requests as one batch and returns the decoded values by label.
func (c *Client) Read(ctx context.Context, requests []Request, blockNumber *big.Int) (map[string]Value, error) {
	return ReadFields(ctx, c, requests, blockNumber, c.logger)
}

// BlockNumber returns the block number seen by the aggregator at blockNumber.
func (c *Client) BlockNumber(ctx context.Context, blockNumber *big.Int) (*big.Int, error) {
	return c.callUint256(ctx, GetBlockNumber, blockNumber)
}

// CurrentBlockTimestamp returns the timestamp of the block seen by the
// aggregator at blockNumber.
func (c *Client) CurrentBlockTimestamp(ctx context.Context, blockNumber *big.Int) (*big.Int, error) {
	return c.callUint256(ctx, GetCurrentBlockTimestamp, blockNumber)
}

func (c *Client) callUint256(ctx context.Context, sig abicodec.Signature, blockNumber *big.Int) (*big.Int, error) {
	data, err := abicodec.EncodeCall(sig)
	if err != nil {
		return nil, err
	}
	raw, err := c.transport.Call(ctx, c.address, data, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("calling %s at block=%s: %w", sig.Canonical(), blockNumberString(blockNumber), err)
	}
	v, err := abicodec.DecodeUint256(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", sig.Canonical(), err)
	}
	return v.ToBig(), nil
}

// ReadFields builds descriptors for requests, executes them through m in a
// single batch and maps each decoded result back to its label.
//
// Subcalls that fail, or succeed with undecodable data, are reported as
// Unavailable; only errors that make the whole batch untrustworthy are
// returned.
func ReadFields(
	ctx context.Context,
	m outbound.Multicaller,
	requests []Request,
	blockNumber *big.Int,
	logger *slog.Logger,
) (map[string]Value, error) {
	if logger == nil {
		logger = slog.Default()
	}

	descriptors, labels, err := BuildDescriptors(requests)
	if err != nil {
		return nil, err
	}

	results, err := m.Execute(ctx, Calls(descriptors), blockNumber)
	if err != nil {
		return nil, err
	}
	if len(results) != len(descriptors) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrResultCount, len(descriptors), len(results))
	}

	values := make([]Value, len(results))
	for i, r := range results {
		v, err := DecodeScalar(r, descriptors[i].Outputs)
		if err != nil {
			logger.Warn("undecodable subcall result",
				"label", labels[i],
				"target", descriptors[i].Target.Hex(),
				"block", blockNumberString(blockNumber),
				"error", err)
		} else if !r.Success {
			logger.Debug("subcall failed",
				"label", labels[i],
				"target", descriptors[i].Target.Hex(),
				"block", blockNumberString(blockNumber))
		}
		values[i] = v
	}

	return ZipLabelsAndValues(labels, values)
}

// IsBatchFatal reports whether err aborted a whole batch rather than a single field.
func IsBatchFatal(err error) bool {
	return errors.Is(err, abicodec.ErrEncoding) ||
		errors.Is(err, abicodec.ErrDecoding) ||
		errors.Is(err, outbound.ErrTransport) ||
		errors.Is(err, ErrShapeMismatch)
}

func blockNumberString(blockNumber *big.Int) string {
	if blockNumber == nil {
		return "latest"
	}
	return blockNumber.String()
}
