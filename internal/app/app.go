// Package app wires every RCS component into a runnable process: config,
// infrastructure connections, the domain services, and the HTTP surface
// that exposes them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/config"
	"github.com/restorecp/rcs/internal/evidence"
	"github.com/restorecp/rcs/internal/execution"
	"github.com/restorecp/rcs/internal/freshness"
	"github.com/restorecp/rcs/internal/httpserver"
	"github.com/restorecp/rcs/internal/jobsvc"
	"github.com/restorecp/rcs/internal/notify"
	"github.com/restorecp/rcs/internal/plan"
	"github.com/restorecp/rcs/internal/platform"
	"github.com/restorecp/rcs/internal/scopelock"
	"github.com/restorecp/rcs/internal/seed"
	"github.com/restorecp/rcs/internal/snapshot"
	"github.com/restorecp/rcs/internal/sourcing"
	"github.com/restorecp/rcs/internal/telemetry"
)

// Run is the process entry point. It reads infrastructure connections from
// cfg and dispatches to the requested mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting rcs", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, logger, db)
	case "seed-demo":
		svcs, err := buildServices(ctx, cfg, logger, db, rdb)
		if err != nil {
			return err
		}
		return seed.RunDemo(ctx, seed.Services{
			Registry:  svcs.resolver.Registry,
			Plans:     svcs.plans,
			Jobs:      svcs.jobs,
			Execution: svcs.execution,
			Evidence:  svcs.evidence,
		}, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// services bundles every domain service constructed from one store, so both
// runAPI and the seed-demo mode build the identical dependency graph.
type services struct {
	store     snapshot.Store
	resolver  *sourcing.Resolver
	plans     *plan.Service
	jobs      *jobsvc.Service
	execution *execution.Service
	evidence  *evidence.Service
	projector *jobsvc.Projector
}

func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*services, error) {
	store := snapshot.NewPostgresStore(db)

	registry := sourcing.NewRegistry(nil)
	var live sourcing.MappingResolver
	if cfg.ACPBaseURL != "" && cfg.ACPOIDCIssuer != "" {
		client, err := sourcing.NewACPClient(ctx, cfg.ACPBaseURL, cfg.ACPOIDCIssuer, cfg.ACPClientID, cfg.ACPClientSecret)
		if err != nil {
			return nil, fmt.Errorf("initializing ACP client: %w", err)
		}
		live = client
		logger.Info("source authorization: live ACP resolver enabled", "base_url", cfg.ACPBaseURL)
	} else {
		logger.Info("source authorization: using static registry (RCS_ACP_BASE_URL not set)")
	}
	resolver := &sourcing.Resolver{Live: live, Registry: registry}

	var oracle freshness.Oracle
	if cfg.FreshnessOracleBaseURL != "" {
		oracle = freshness.NewHTTPOracle(cfg.FreshnessOracleBaseURL)
		logger.Info("freshness oracle: HTTP client enabled", "base_url", cfg.FreshnessOracleBaseURL)
	} else {
		oracle = freshness.NewHTTPOracle("")
		logger.Warn("freshness oracle: RCS_FRESHNESS_ORACLE_BASE_URL not set, every partition will read as unknown")
	}
	staleAfter := time.Duration(cfg.DefaultStaleAfterSeconds) * time.Second
	freshnessReader := freshness.NewReader(oracle, rdb, logger, staleAfter)

	plans := plan.NewService(store, resolver, freshnessReader)

	locks := scopelock.NewManager()
	projector := jobsvc.NewProjector(store, logger)
	projector.Start(ctx)
	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	var createJobLimiter *auth.RateLimiter
	if cfg.RateLimitCreateJobPerMinute > 0 {
		createJobLimiter = auth.NewRateLimiter(rdb, "create_job", cfg.RateLimitCreateJobPerMinute, time.Minute)
	}
	jobs := jobsvc.NewService(store, plans, resolver, locks, projector, notifier, createJobLimiter)

	limits := execution.CapabilityLimits{
		MaxRows:                  cfg.DefaultMaxRows,
		ElevatedSkipRatioPercent: cfg.DefaultElevatedSkipRatioPercent,
		MediaMaxItems:            cfg.DefaultMediaMaxItems,
		MediaMaxBytes:            cfg.DefaultMediaMaxBytes,
	}
	var executeJobLimiter *auth.RateLimiter
	if cfg.RateLimitExecuteJobPerMinute > 0 {
		executeJobLimiter = auth.NewRateLimiter(rdb, "execute_job", cfg.RateLimitExecuteJobPerMinute, time.Minute)
	}
	exec := execution.NewService(store, plans, jobs, logger, limits, cfg.DefaultChunkSize, executeJobLimiter).
		WithDefaultMaxChunksPerAttempt(cfg.DefaultMaxChunksPerAttempt).
		WithDefaultMaxRetryAttempts(cfg.DefaultMaxRetryAttempts)

	signer, err := evidence.NewSigner(cfg.EvidenceSigningKeyHex)
	if err != nil {
		return nil, fmt.Errorf("initializing evidence signer: %w", err)
	}
	evidenceSvc := evidence.NewService(store, plans, jobs, exec, signer, notifier)

	return &services{
		store:     store,
		resolver:  resolver,
		plans:     plans,
		jobs:      jobs,
		execution: exec,
		evidence:  evidenceSvc,
		projector: projector,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	svcs, err := buildServices(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}

	var verifier *auth.ClaimsVerifier
	if cfg.ClaimsVerificationKey != "" {
		verifier, err = auth.NewClaimsVerifier(cfg.ClaimsVerificationKey, cfg.ClaimsExpectedIssuer, cfg.ClaimsExpectedAudience)
		if err != nil {
			return fmt.Errorf("initializing claims verifier: %w", err)
		}
	} else {
		logger.Warn("claims verification key not set: every /api/v1 request will be rejected")
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, verifier)

	planHandler := plan.NewHandler(svcs.plans, logger)
	srv.APIRouter.Mount("/plans", planHandler.Routes())

	jobHandler := jobsvc.NewHandler(svcs.jobs, logger)
	srv.APIRouter.Mount("/jobs", jobHandler.Routes())

	execHandler := execution.NewHandler(svcs.execution, logger)
	srv.APIRouter.Mount("/executions", execHandler.Routes())

	evidenceHandler := evidence.NewHandler(svcs.evidence, logger)
	srv.APIRouter.Mount("/evidence", evidenceHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs background maintenance that does not belong on the
// request path: sweeping job event projections is already bounded and
// inline, so the only periodic duty today is a liveness heartbeat that
// confirms the store connection is still healthy.
func runWorker(ctx context.Context, logger *slog.Logger, db *pgxpool.Pool) error {
	logger.Info("worker started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := db.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Error("worker: database ping failed", "error", err)
			}
		}
	}
}
