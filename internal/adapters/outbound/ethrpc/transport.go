// Package ethrpc implements the outbound Transport over an Ethereum JSON-RPC
// endpoint. It owns the policies the batching core deliberately leaves out:
//   - Per-attempt timeouts
//   - Optional retry with exponential backoff for transient failures
//   - Optional client-side rate limiting
package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/multiread/internal/pkg/retry"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Compile-time checks that Transport implements the outbound ports
var (
	_ outbound.Transport         = (*Transport)(nil)
	_ outbound.CalldataLimiter   = (*Transport)(nil)
	_ outbound.BlockNumberReader = (*Transport)(nil)
)

// Config holds configuration for the RPC transport.
type Config struct {
	// URL is the HTTP(S) or WebSocket JSON-RPC endpoint.
	URL string

	// Timeout bounds a single attempt. Defaults to 30s.
	Timeout time.Duration

	// MaxRetries is the number of retries for transient failures.
	// 0 (the default) sends every request exactly once.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// RequestsPerSecond limits outgoing requests. 0 disables limiting.
	RequestsPerSecond float64

	// MaxCalldataSize is the largest calldata item, in bytes, this endpoint
	// accepts. 0 means no limit.
	MaxCalldataSize int

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Timeout:        30 * time.Second,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

func applyDefaults(config *Config, defaults Config) {
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// Transport performs eth_call and eth_blockNumber against one endpoint.
type Transport struct {
	rpcClient   *rpc.Client
	client      *ethclient.Client
	config      Config
	limiter     *rate.Limiter
	retryConfig retry.Config
	logger      *slog.Logger
}

// Dial connects to cfg.URL and returns a transport over it.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("URL is required")
	}
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", outbound.ErrTransport, cfg.URL, err)
	}
	t, err := NewTransport(rpcClient, cfg)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return t, nil
}

// NewTransport wraps an existing rpc client.
func NewTransport(rpcClient *rpc.Client, cfg Config) (*Transport, error) {
	if rpcClient == nil {
		return nil, errors.New("rpc client cannot be nil")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.MaxCalldataSize < 0 {
		return nil, fmt.Errorf("max calldata size must be >= 0, got %d", cfg.MaxCalldataSize)
	}
	applyDefaults(&cfg, ConfigDefaults())

	logger := cfg.Logger.With("component", "ethrpc-transport")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Transport{
		rpcClient: rpcClient,
		client:    ethclient.NewClient(rpcClient),
		config:    cfg,
		limiter:   limiter,
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  cfg.BackoffFactor,
			Jitter:         true,
			IsRetryable:    isRetryable,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				logger.Warn("retrying rpc request", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
		logger: logger,
	}, nil
}

// RPCClient returns the underlying client, for callers that need JSON-RPC
// batching directly.
func (t *Transport) RPCClient() *rpc.Client {
	return t.rpcClient
}

// MaxCalldataSize returns the configured calldata ceiling; 0 means none.
func (t *Transport) MaxCalldataSize() int {
	return t.config.MaxCalldataSize
}

// Call executes eth_call against to with data at blockNumber (nil = latest).
// Every failure, including a revert reported by the node, wraps
// outbound.ErrTransport.
func (t *Transport) Call(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}

	out, err := retry.Do(ctx, t.retryConfig, func(ctx context.Context) ([]byte, error) {
		if err := t.wait(ctx); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
		return t.client.CallContract(ctx, msg, blockNumber)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: eth_call to %s: %w", outbound.ErrTransport, to.Hex(), err)
	}
	return out, nil
}

// BlockNumber returns the number of the most recent block.
func (t *Transport) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := retry.Do(ctx, t.retryConfig, func(ctx context.Context) (uint64, error) {
		if err := t.wait(ctx); err != nil {
			return 0, err
		}
		ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
		return t.client.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %w", outbound.ErrTransport, err)
	}
	return n, nil
}

// Close closes the underlying connection.
func (t *Transport) Close() {
	t.rpcClient.Close()
}

func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

// isRetryable reports whether err is worth another attempt. Errors returned
// by the node itself (reverts, invalid params) are final; so is context
// cancellation. HTTP 429 and 5xx answers and network failures are retried.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	return true
}
