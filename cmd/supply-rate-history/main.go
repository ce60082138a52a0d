// Package main provides a CLI tool that samples the supply rates of a set of
// lending markets across the last year of blocks and prints the history as
// JSON on stdout. Each sample is a single aggregator batch.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/archon-research/multiread/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/multiread/internal/adapters/outbound/filecache"
	"github.com/archon-research/multiread/internal/adapters/outbound/postgres"
	rediscache "github.com/archon-research/multiread/internal/adapters/outbound/redis"
	s3cache "github.com/archon-research/multiread/internal/adapters/outbound/s3"
	"github.com/archon-research/multiread/internal/adapters/outbound/telemetry"
	"github.com/archon-research/multiread/internal/pkg/blockchain/multicall"
	"github.com/archon-research/multiread/internal/pkg/env"
	"github.com/archon-research/multiread/internal/ports/outbound"
	"github.com/archon-research/multiread/internal/services/rate_history"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

const (
	cacheDir   = "dir"
	cacheRedis = "redis"
	cacheS3    = "s3"
	cacheNone  = "none"
)

type cliConfig struct {
	rpcURL         string
	multicall      string
	markets        []common.Address
	source         string
	points         int
	concurrency    int
	blockTime      time.Duration
	block          int64
	direct         bool
	requireSuccess bool
	retries        int
	rps            float64

	cache     string
	cacheDir  string
	redisAddr string
	s3Bucket  string
	s3Root    string

	dbURL        string
	otlpEndpoint string
	traceDebug   bool
	verbose      bool
}

func parseFlags(args []string) (cliConfig, error) {
	points, err := env.GetInt("POINTS", 10)
	if err != nil {
		return cliConfig{}, err
	}
	concurrency, err := env.GetInt("CONCURRENCY", 4)
	if err != nil {
		return cliConfig{}, err
	}
	blockTime, err := env.GetDuration("BLOCK_TIME", 13*time.Second)
	if err != nil {
		return cliConfig{}, err
	}
	retries, err := env.GetInt("RPC_MAX_RETRIES", 0)
	if err != nil {
		return cliConfig{}, err
	}

	fs := flag.NewFlagSet("supply-rate-history", flag.ContinueOnError)
	rpcURL := fs.String("rpc-url", "", "JSON-RPC endpoint (env RPC_URL)")
	multicallAddr := fs.String("multicall", "", "Aggregator contract address (env MULTICALL_ADDRESS, default Multicall3)")
	markets := fs.String("markets", "", "Comma-separated market addresses (env MARKETS)")
	source := fs.String("source", env.Get("SOURCE", "supplyrates"), "Name of the market set, used as cache prefix")
	pointsFlag := fs.Int("points", points, "Number of blocks sampled over the year")
	concurrencyFlag := fs.Int("concurrency", concurrency, "Number of snapshots read concurrently")
	blockTimeFlag := fs.Duration("block-time", blockTime, "Average block interval")
	block := fs.Int64("block", -1, "Read a single snapshot at this block instead of the history")
	direct := fs.Bool("direct", false, "Send one eth_call per read in a JSON-RPC batch instead of using the aggregator")
	requireSuccess := fs.Bool("require-success", false, "Fail the whole batch when any read fails")
	retriesFlag := fs.Int("retries", retries, "Retries for transient RPC failures")
	rps := fs.Float64("rps", 0, "Maximum RPC requests per second (0 = unlimited)")
	cache := fs.String("cache", env.Get("CACHE_BACKEND", cacheDir), "Cache backend: dir, redis, s3 or none")
	dir := fs.String("cache-dir", "", "Cache directory (env CACHE_DIR, default ./cache)")
	redisAddr := fs.String("redis-addr", "", "Redis address (env REDIS_ADDR)")
	s3Bucket := fs.String("s3-bucket", "", "S3 bucket (env S3_BUCKET)")
	s3Root := fs.String("s3-root", env.Get("S3_ROOT", "supply-rate-history"), "Key prefix inside the S3 bucket")
	dbURL := fs.String("db", "", "PostgreSQL connection URL (env DATABASE_URL); empty disables persistence")
	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP gRPC endpoint (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	traceDebug := fs.Bool("trace-debug", false, "Print spans to stderr")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		rpcURL:         *rpcURL,
		multicall:      *multicallAddr,
		source:         *source,
		points:         *pointsFlag,
		concurrency:    *concurrencyFlag,
		blockTime:      *blockTimeFlag,
		block:          *block,
		direct:         *direct,
		requireSuccess: *requireSuccess,
		retries:        *retriesFlag,
		rps:            *rps,
		cache:          strings.ToLower(*cache),
		cacheDir:       *dir,
		redisAddr:      *redisAddr,
		s3Bucket:       *s3Bucket,
		s3Root:         *s3Root,
		dbURL:          *dbURL,
		otlpEndpoint:   *otlpEndpoint,
		traceDebug:     *traceDebug,
		verbose:        *verbose,
	}

	if cfg.rpcURL == "" {
		cfg.rpcURL = env.Get("RPC_URL", "")
	}
	if cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("--rpc-url is required")
	}
	if cfg.multicall == "" {
		cfg.multicall = env.Get("MULTICALL_ADDRESS", multicall.DefaultAddressHex)
	}
	if !common.IsHexAddress(cfg.multicall) {
		return cliConfig{}, fmt.Errorf("invalid --multicall address %q", cfg.multicall)
	}

	rawMarkets := env.SplitList(*markets)
	if len(rawMarkets) == 0 {
		rawMarkets = env.GetList("MARKETS", nil)
	}
	if len(rawMarkets) == 0 {
		return cliConfig{}, fmt.Errorf("--markets is required")
	}
	for _, m := range rawMarkets {
		if !common.IsHexAddress(m) {
			return cliConfig{}, fmt.Errorf("invalid market address %q", m)
		}
		cfg.markets = append(cfg.markets, common.HexToAddress(m))
	}

	if cfg.points < 2 {
		return cliConfig{}, fmt.Errorf("--points must be >= 2")
	}
	if cfg.concurrency < 1 {
		return cliConfig{}, fmt.Errorf("--concurrency must be >= 1")
	}
	if cfg.blockTime <= 0 {
		return cliConfig{}, fmt.Errorf("--block-time must be > 0")
	}
	if cfg.retries < 0 {
		return cliConfig{}, fmt.Errorf("--retries must be >= 0")
	}

	switch cfg.cache {
	case cacheDir:
		if cfg.cacheDir == "" {
			cfg.cacheDir = env.Get("CACHE_DIR", "cache")
		}
	case cacheRedis:
		if cfg.redisAddr == "" {
			cfg.redisAddr = env.Get("REDIS_ADDR", rediscache.ConfigDefaults().Addr)
		}
	case cacheS3:
		if cfg.s3Bucket == "" {
			cfg.s3Bucket = env.Get("S3_BUCKET", "")
		}
		if cfg.s3Bucket == "" {
			return cliConfig{}, fmt.Errorf("s3 bucket not provided (use --s3-bucket flag or S3_BUCKET env var)")
		}
	case cacheNone:
	default:
		return cliConfig{}, fmt.Errorf("unknown cache backend %q", cfg.cache)
	}

	if cfg.dbURL == "" {
		cfg.dbURL = env.Get("DATABASE_URL", "")
	}
	if cfg.otlpEndpoint == "" {
		cfg.otlpEndpoint = env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	}

	return cfg, nil
}

// loadEnvFiles fills unset environment variables from .env and .env.local
// in the working directory. Missing files are ignored.
func loadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

func run(args []string, stdout io.Writer) error {
	loadEnvFiles()

	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logLevel := env.ParseLogLevel(slog.LevelInfo)
	if cfg.verbose {
		logLevel = slog.LevelDebug
	}

	// stdout carries the JSON result.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	shutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	transport, err := ethrpc.Dial(ctx, ethrpc.Config{
		URL:               cfg.rpcURL,
		MaxRetries:        cfg.retries,
		RequestsPerSecond: cfg.rps,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("connecting to RPC: %w", err)
	}
	defer transport.Close()
	logger.Info("Ethereum RPC connected", "url", cfg.rpcURL)

	multicaller, err := newMulticaller(cfg, transport, logger)
	if err != nil {
		return err
	}

	cache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var repo outbound.SnapshotRepository
	if cfg.dbURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.dbURL))
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo, err = postgres.NewSnapshotRepository(pool, logger, 0)
		if err != nil {
			return fmt.Errorf("creating repository: %w", err)
		}
		logger.Info("PostgreSQL connected")
	}

	service, err := rate_history.NewService(
		rate_history.Config{
			Source:      cfg.source,
			Points:      cfg.points,
			Concurrency: cfg.concurrency,
			BlockTime:   cfg.blockTime,
			Aggregator:  common.HexToAddress(cfg.multicall),
			Logger:      logger,
		},
		rate_history.DefaultMarkets(cfg.markets),
		multicaller,
		transport,
		cache,
		repo,
	)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	var result any
	if cfg.block >= 0 {
		result, err = service.Snapshot(ctx, cfg.block)
	} else {
		result, err = service.History(ctx)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

func initTelemetry(ctx context.Context, cfg cliConfig) (func(context.Context) error, error) {
	tracerCfg := telemetry.TracerConfigDefaults()
	tracerCfg.OTLPEndpoint = cfg.otlpEndpoint
	tracerCfg.Debug = cfg.traceDebug
	shutdownTracer, err := telemetry.InitTracer(ctx, tracerCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    tracerCfg.ServiceName,
		ServiceVersion: tracerCfg.ServiceVersion,
		Environment:    tracerCfg.Environment,
		OTLPEndpoint:   cfg.otlpEndpoint,
	})
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	return func(ctx context.Context) error {
		return errors.Join(shutdownMetrics(ctx), shutdownTracer(ctx))
	}, nil
}

func newMulticaller(cfg cliConfig, transport *ethrpc.Transport, logger *slog.Logger) (outbound.Multicaller, error) {
	if cfg.direct {
		return multicall.NewDirectCaller(transport.RPCClient(), cfg.requireSuccess), nil
	}

	metrics, err := telemetry.NewBatchMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	client, err := multicall.NewClient(transport, multicall.Config{
		Address:        common.HexToAddress(cfg.multicall),
		RequireSuccess: cfg.requireSuccess,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating multicall client: %w", err)
	}
	return client, nil
}

// openCache returns the configured cache backend, or nil for "none".
func openCache(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.SnapshotCache, func(), error) {
	noop := func() {}

	switch cfg.cache {
	case cacheDir:
		cache, err := filecache.NewSnapshotCache(cfg.cacheDir, logger)
		if err != nil {
			return nil, noop, err
		}
		return cache, noop, nil

	case cacheRedis:
		redisCfg := rediscache.ConfigDefaults()
		redisCfg.Addr = cfg.redisAddr
		redisCfg.Password = env.Get("REDIS_PASSWORD", "")
		cache, err := rediscache.NewSnapshotCache(redisCfg, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("creating redis cache: %w", err)
		}
		if err := cache.Ping(ctx); err != nil {
			cache.Close()
			return nil, noop, fmt.Errorf("connecting to redis: %w", err)
		}
		return cache, func() { cache.Close() }, nil

	case cacheS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(env.Get("AWS_REGION", "us-east-1")))
		if err != nil {
			return nil, noop, fmt.Errorf("loading AWS config: %w", err)
		}
		cache, err := s3cache.NewSnapshotCache(awsCfg, s3cache.Config{
			Bucket:   cfg.s3Bucket,
			Root:     cfg.s3Root,
			Compress: true,
		}, logger, func(o *awss3.Options) {
			if endpoint := env.Get("AWS_S3_ENDPOINT", ""); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
		if err != nil {
			return nil, noop, fmt.Errorf("creating s3 cache: %w", err)
		}
		return cache, noop, nil

	default:
		return nil, noop, nil
	}
}
