package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"escrownet/config"
	"escrownet/core"
	"escrownet/core/genesis"
	"escrownet/core/state"
	"escrownet/gateway"
	"escrownet/observability/logging"
	"escrownet/observability/metrics"
	"escrownet/observability/otel"
	"escrownet/rpc"
	"escrownet/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	genesisPath := flag.String("genesis", "", "override the genesis file from the configuration")
	flag.Parse()

	if err := run(*configPath, *genesisPath); err != nil {
		fmt.Fprintf(os.Stderr, "escrownetd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, genesisOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup("escrownetd", cfg.Telemetry.Environment, logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown", "err", err)
			}
		}()
	}

	genesisFile := cfg.GenesisFile
	if genesisOverride != "" {
		genesisFile = genesisOverride
	}
	if genesisFile == "" {
		return fmt.Errorf("a genesis file is required (set GenesisFile or pass -genesis)")
	}
	spec, err := genesis.LoadGenesisSpec(genesisFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open chain database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := spec.Apply(manager); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	node, err := core.NewNode(manager, spec.FeeTreasuryAddress())
	if err != nil {
		return err
	}
	node.SetLogger(logger)
	node.SetMetrics(metrics.New(prometheus.DefaultRegisterer))

	rpcServer := rpc.NewServer(node, cfg.RPCBearerToken)
	rpcServer.SetLogger(logger)

	var auth *gateway.Authenticator
	if cfg.Gateway.JWTSecret != "" {
		auth, err = gateway.NewAuthenticator([]byte(cfg.Gateway.JWTSecret), gateway.ScopeSubmit)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("gateway running without JWT auth; set Gateway.JWTSecret in production")
	}
	idemStore, err := gateway.OpenIdempotencyStore(cfg.Gateway.IdempotencyDBPath, 24*time.Hour)
	if err != nil {
		return err
	}
	defer idemStore.Close()

	router := gateway.NewRouter(gateway.RouterConfig{
		RPC:           rpcServer,
		Auth:          auth,
		Idempotency:   idemStore,
		Logger:        logger,
		RatePerSecond: cfg.Gateway.RateLimitPerSecond,
		RateBurst:     cfg.Gateway.RateLimitBurst,
	})

	rpcSrv := &http.Server{Addr: cfg.RPCAddress, Handler: rpcServer, ReadHeaderTimeout: 10 * time.Second}
	gatewaySrv := &http.Server{Addr: cfg.GatewayAddress, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("rpc listening", "addr", cfg.RPCAddress)
		if err := rpcSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("gateway listening", "addr", cfg.GatewayAddress)
		if err := gatewaySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
	}()
	go func() {
		interval := time.Duration(cfg.BlockIntervalSeconds) * time.Second
		logger.Info("node running", "blockInterval", interval, "height", node.Height())
		if err := node.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("node: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("fatal", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gatewaySrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "err", err)
	}
	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown", "err", err)
	}
	return nil
}
