package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"phoenixescrow/config"
	"phoenixescrow/core"
	phxstate "phoenixescrow/core/state"
	"phoenixescrow/observability/logging"
	telemetry "phoenixescrow/observability/otel"
	"phoenixescrow/rpc"
	"phoenixescrow/storage"
	"phoenixescrow/storage/auditdb"
)

const serviceName = "auctiond"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(serviceName, cfg.Environment, loggingOptions(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("auctiond terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func loggingOptions(cfg config.Logging) logging.Options {
	opts := logging.Options{Level: logging.ParseLevel(cfg.Level)}
	if cfg.File != "" {
		opts.File = &logging.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return opts
}

// node owns the stores backing one executor.
type node struct {
	executor *core.Executor
	journal  *auditdb.Store
	db       *storage.LevelDB
}

func (n *node) Close() {
	if n.journal != nil {
		_ = n.journal.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}

// openNode opens the state and audit stores and applies the configured
// genesis when the module has not been initialised yet.
func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	n := &node{db: db}
	journal, err := auditdb.Open(cfg.AuditDBPath)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	n.journal = journal

	n.executor = core.NewExecutor(phxstate.NewManager(db), logger)
	n.executor.SetJournal(journal)

	initialised, err := n.executor.Initialized()
	if err != nil {
		n.Close()
		return nil, err
	}
	switch {
	case initialised:
		logger.Info("module state loaded", slog.String("data_dir", cfg.DataDir))
	case cfg.Genesis.Configured():
		genesis, err := cfg.Genesis.Build()
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("build genesis: %w", err)
		}
		if _, err := n.executor.ApplyGenesis(ctx, genesis); err != nil {
			n.Close()
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied",
			slog.String("admin", cfg.Genesis.Admin),
			slog.Int("allocations", len(cfg.Genesis.Allocations)))
	default:
		logger.Warn("no genesis configured; commands are rejected until the module is initialised")
	}
	return n, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	secret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}
	logger.Info("rpc auth configured", authAttrs(cfg, secret)...)

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	server, err := rpc.NewServer(n.executor, n.journal, rpc.ServerConfig{
		JWTSecret:          secret,
		JWTIssuer:          cfg.RPC.JWTIssuer,
		JWTAudience:        cfg.RPC.JWTAudience,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialise rpc server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: config.Seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       config.Seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      config.Seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       config.Seconds(cfg.RPC.IdleTimeout),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", slog.String("address", cfg.RPCAddress))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing rpc server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve rpc: %w", err)
	}
}

// authAttrs describes the token settings for the startup log with the
// signing secret masked.
func authAttrs(cfg *config.Config, secret []byte) []any {
	return []any{
		slog.String("secret_env", cfg.RPC.JWTSecretEnv),
		logging.MaskField("jwt_secret", string(secret)),
		slog.String("issuer", cfg.RPC.JWTIssuer),
		slog.String("audience", cfg.RPC.JWTAudience),
	}
}
