package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/bountyflow-backend/internal/adapter/grpc"
	httpadapter "github.com/simaogato/bountyflow-backend/internal/adapter/http"
	ledgermemory "github.com/simaogato/bountyflow-backend/internal/adapter/ledger/memory"
	"github.com/simaogato/bountyflow-backend/internal/adapter/ledger/rpc"
	"github.com/simaogato/bountyflow-backend/internal/adapter/oracle/github"
	"github.com/simaogato/bountyflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bountyflow-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/bountyflow-backend/internal/config"
	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
	"github.com/simaogato/bountyflow-backend/internal/retry"
	"github.com/simaogato/bountyflow-backend/internal/usecase/account"
	"github.com/simaogato/bountyflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/bountyflow-backend/internal/usecase/escrow"
	"github.com/simaogato/bountyflow-backend/internal/usecase/pool"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
	"github.com/simaogato/bountyflow-backend/internal/usecase/release"
	"github.com/simaogato/bountyflow-backend/internal/usecase/seeder"
)

func main() {
	configPath := flag.String("config", os.Getenv("BOUNTY_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service:    cfg.Service,
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	m := metrics.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Setup storage
	accountRepo, bountyRepo, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// 2. Setup ledger and evidence oracle
	var (
		ledger domain.LedgerService
		funder seeder.LedgerFunder
	)
	switch cfg.Ledger.Mode {
	case config.LedgerModeMemory:
		memLedger := ledgermemory.New()
		ledger, funder = memLedger, memLedger
	default:
		ledger = rpc.NewClient(rpc.Options{
			URL:               cfg.Ledger.URL,
			AuthToken:         cfg.Ledger.AuthToken,
			Timeout:           cfg.Ledger.Timeout.Duration,
			RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
			Burst:             cfg.Ledger.Burst,
			Metrics:           m,
		})
	}

	var oracle domain.EvidenceOracle
	switch cfg.Oracle.Mode {
	case config.OracleModeInline:
		oracle = github.InlineOracle{}
	default:
		oracle = github.New(github.Options{
			APIBase:           cfg.Oracle.APIBase,
			Token:             cfg.Oracle.Token,
			Timeout:           cfg.Oracle.Timeout.Duration,
			RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
		})
	}

	// 3. Initialize Services (Use Cases)
	retryPolicy := retry.Policy{
		MaxAttempts:     cfg.Escrow.Retry.MaxAttempts,
		InitialInterval: cfg.Escrow.Retry.InitialInterval.Duration,
		MaxInterval:     cfg.Escrow.Retry.MaxInterval.Duration,
	}
	escrowPolicy := escrow.Policy{
		DefaultTimeLimit:  cfg.Escrow.DefaultTimeLimit.Duration,
		MinTimeLimit:      cfg.Escrow.MinTimeLimit.Duration,
		MaxTimeLimit:      cfg.Escrow.MaxTimeLimit.Duration,
		LedgerPrecheck:    cfg.Escrow.LedgerPrecheck,
		ReserveMinimum:    cfg.Escrow.ReserveMinimum,
		FeeMargin:         cfg.Escrow.FeeMargin,
		MaxAcceptAttempts: cfg.Escrow.MaxAcceptAttempts,
		Retry:             retryPolicy,
	}

	reconciler := reconcile.NewReconciler(accountRepo, bountyRepo, logger, m)
	accountService := account.NewAccountService(accountRepo, ledger, logger)
	poolService := pool.NewPoolService(accountRepo, bountyRepo, pool.Policy{
		AllowFunderBoost: cfg.Escrow.AllowFunderBoost,
		MaxTimeLimit:     cfg.Escrow.MaxTimeLimit.Duration,
	}, logger, m)
	coordinator := escrow.NewCoordinator(accountRepo, bountyRepo, ledger, reconciler, escrowPolicy, logger, m)
	gate := release.NewGate(accountRepo, bountyRepo, ledger, oracle, reconciler, retryPolicy, logger, m)
	dashboardService := dashboard.NewDashboardService(accountRepo, bountyRepo)

	// Seed configured accounts
	seeds := make([]seeder.SeedAccount, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		seeds = append(seeds, seeder.SeedAccount{
			Username:   a.Username,
			Address:    a.Address,
			Credential: a.Credential,
			Balance:    a.Balance,
		})
	}
	if err := seeder.NewSystemSeeder(accountRepo, seeds, funder, logger).Seed(ctx); err != nil {
		logger.Error("failed to seed accounts", "error", err)
		os.Exit(1)
	}

	if cfg.Recon.Interval.Duration > 0 {
		go reconcile.NewScheduler(reconciler, cfg.Recon.Interval.Duration, logger).Start(ctx)
	}

	// 4. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger, m),
			grpcadapter.AuthInterceptor(cfg.Server.APIToken),
		),
	)
	grpcadapter.RegisterBountyServiceServer(grpcServer,
		grpcadapter.NewServer(accountService, poolService, coordinator, gate, dashboardService))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		logger.Error("failed to listen", "address", cfg.Server.GRPCAddress, "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("gRPC server listening", "address", cfg.Server.GRPCAddress)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped with error", "error", err)
			os.Exit(1)
		}
	}()

	// 5. Start HTTP Server
	handler := httpadapter.NewHandler(accountService, poolService, coordinator, gate, dashboardService, reconciler)
	router := httpadapter.NewRouter(handler, httpadapter.RouterOptions{
		APIToken: cfg.Server.APIToken,
		Logger:   logger,
		Metrics:  m,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", cfg.Server.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped with error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	waitForShutdown(logger, cancel, grpcServer, httpServer, cfg.Server.ShutdownTimeout.Duration)
}

// openStore returns the repositories for the configured driver and a close func
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (domain.AccountRepository, domain.BountyRepository, func(), error) {
	if cfg.Driver == config.DriverMemory {
		store := memory.NewStore()
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.NewAccountRepository(store), memory.NewBountyRepository(store), func() {}, nil
	}

	// Give a freshly started Postgres container time to accept connections
	if cfg.StartupDelay.Duration > 0 {
		time.Sleep(cfg.StartupDelay.Duration)
	}

	db, err := postgres.NewDB(cfg.DSN())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	return postgres.NewAccountRepository(db), postgres.NewBountyRepository(db), closeDB, nil
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down both servers
func waitForShutdown(logger *slog.Logger, cancel context.CancelFunc, grpcServer *grpclib.Server, httpServer *http.Server, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("received signal, shutting down gracefully", "signal", sig.String())

	// Stops the reconciliation scheduler
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), timeout)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
}
