package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/scanguard/internal/api"
	"github.com/ahrav/scanguard/internal/api/debug"
	"github.com/ahrav/scanguard/internal/api/mux"
	"github.com/ahrav/scanguard/internal/api/routes"
	appquarantine "github.com/ahrav/scanguard/internal/app/quarantine"
	"github.com/ahrav/scanguard/internal/app/scanning"
	"github.com/ahrav/scanguard/internal/config"
	"github.com/ahrav/scanguard/internal/config/viperloader"
	"github.com/ahrav/scanguard/internal/domain/events"
	"github.com/ahrav/scanguard/internal/domain/quarantine"
	domain "github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/internal/infra/eventbus/kafka"
	"github.com/ahrav/scanguard/internal/infra/eventbus/memory"
	"github.com/ahrav/scanguard/internal/infra/reputation"
	"github.com/ahrav/scanguard/internal/infra/storage"
	qmemory "github.com/ahrav/scanguard/internal/infra/storage/quarantine/memory"
	qpostgres "github.com/ahrav/scanguard/internal/infra/storage/quarantine/postgres"
	smemory "github.com/ahrav/scanguard/internal/infra/storage/scanning/memory"
	spostgres "github.com/ahrav/scanguard/internal/infra/storage/scanning/postgres"
	"github.com/ahrav/scanguard/pkg/common"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/common/otel"
)

var build = "develop"

const serviceType = "scanguard"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	ctx := context.Background()

	cfg, err := viperloader.NewViperLoader(os.Getenv("SCANGUARD_CONFIG_FILE")).Load(ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	metadata := map[string]string{
		"service":  cfg.Telemetry.ServiceName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(
		os.Stdout,
		logger.ParseLevel(cfg.Telemetry.LogLevel),
		cfg.Telemetry.ServiceName,
		traceIDFn,
		logEvents,
		metadata,
	)

	if err := run(ctx, log, cfg, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	telemetry, err := otel.InitTelemetry(ctx, log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
			"/debug":        {},
			"/metrics":      {},
		},
		Probability: cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			log.Error(ctx, "shutdown", "status", "telemetry flush failed", "err", err)
		}
	}()

	tracer := telemetry.Tracer(cfg.Telemetry.ServiceName)
	mp := telemetry.MeterProvider

	// -------------------------------------------------------------------------
	// Storage
	var (
		jobs    domain.JobRepository
		results domain.FileResultRepository
		records quarantine.Repository
		ready   func(ctx context.Context) error
	)

	if cfg.Database.DSN != "" {
		log.Info(ctx, "startup", "status", "connecting to postgres")

		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("parsing db config: %w", err)
		}
		poolCfg.MinConns = cfg.Database.MinConns
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("creating db pool: %w", err)
		}
		defer pool.Close()

		if cfg.Database.RunMigrations {
			if err := storage.RunMigrations(pool, cfg.Database.MigrationsDir); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
		}

		jobs = spostgres.NewJobStore(pool, tracer)
		results = spostgres.NewFileResultStore(pool, tracer)
		records = qpostgres.NewStore(pool, tracer)
		ready = pool.Ping
	} else {
		log.Warn(ctx, "startup", "status", "no database configured, state will not survive restarts")

		jobs = smemory.NewJobStore()
		results = smemory.NewFileResultStore()
		records = qmemory.NewStore()
	}

	// -------------------------------------------------------------------------
	// Initialize Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus")

	var publisher events.DomainEventPublisher
	if cfg.Kafka.Enabled() {
		pubMetrics, err := kafka.NewPublisherMetrics(mp)
		if err != nil {
			return fmt.Errorf("creating publisher metrics: %w", err)
		}

		pub, err := kafka.ConnectWithRetry(ctx, &kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, log, tracer, pubMetrics)
		if err != nil {
			return fmt.Errorf("connecting event bus: %w", err)
		}
		defer pub.Close()

		publisher = pub
	} else {
		bus := memory.NewBus()
		if err := bus.Subscribe(func(ctx context.Context, env events.EventEnvelope) error {
			log.Debug(ctx, "domain event", "type", env.Type.String(), "key", env.Key)
			return nil
		}); err != nil {
			return fmt.Errorf("subscribing event logger: %w", err)
		}
		publisher = bus
	}

	// -------------------------------------------------------------------------
	// Quarantine
	manager, err := appquarantine.NewManager(cfg.Quarantine.Dir, records, log, tracer,
		appquarantine.WithPublisher(publisher))
	if err != nil {
		return fmt.Errorf("creating quarantine manager: %w", err)
	}
	manager.StartReconcileLoop(ctx, cfg.Quarantine.ReconcileInterval)
	defer manager.StopReconcileLoop()

	// -------------------------------------------------------------------------
	// Scanning
	if cfg.Reputation.APIKey == "" {
		log.Warn(ctx, "startup", "status", "no reputation api key configured, submissions will fail")
	}
	client := reputation.NewClient(reputation.Config{
		BaseURL:       cfg.Reputation.BaseURL,
		APIKey:        cfg.Reputation.APIKey,
		Timeout:       cfg.Reputation.Timeout,
		PollDelay:     cfg.Reputation.PollDelay,
		ReportRetries: cfg.Reputation.ReportRetries,
		RetryInterval: cfg.Reputation.RetryInterval,
	}, log, tracer)

	scanMetrics, err := scanning.NewScanMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating scan metrics: %w", err)
	}

	scanCfg := scanning.DefaultConfig()
	scanCfg.PacingDelay = cfg.Scanning.PacingDelay
	scanCfg.MaxFileSize = cfg.Scanning.MaxFileSize
	scanCfg.Extensions = cfg.Scanning.Extensions
	scanCfg.ExcludeDirs = []string{manager.Dir()}

	orchOpts := []scanning.Option{scanning.WithPublisher(publisher)}
	if cfg.Reputation.RateLimit > 0 {
		orchOpts = append(orchOpts, scanning.WithLimiter(
			common.NewRateLimiter(cfg.Reputation.RateLimit, max(cfg.Reputation.RateBurst, 1))))
	}

	orchestrator := scanning.NewOrchestrator(scanCfg, jobs, results, client, manager, scanMetrics, log, tracer, orchOpts...)
	registry := scanning.NewRegistry(jobs, results, manager, log, tracer)

	// -------------------------------------------------------------------------
	// Start API Service
	log.Info(ctx, "startup", "status", "initializing API support")

	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	webAPI := mux.WebAPI(mux.Config{
		Build:      build,
		Log:        log,
		Tracer:     tracer,
		Scans:      orchestrator,
		Registry:   registry,
		Quarantine: manager,
		Ready:      ready,
		Metrics:    apiMetrics,
	}, routes.Routes(), mux.WithCORS(cfg.Server.CORSAllowedOrigins))

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      webAPI,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	servers := []*http.Server{apiServer}
	if cfg.Debug.Enabled {
		servers = append(servers, &http.Server{
			Addr:              cfg.Debug.Addr,
			Handler:           debug.Mux(),
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ErrorLog:          logger.NewStdLogger(log, logger.LevelError),
		})
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info(ctx, "startup", "status", "router started", "host", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	// -------------------------------------------------------------------------
	// Shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutdown", "status", "shutdown started")
		defer log.Info(ctx, "shutdown", "status", "shutdown complete")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stopping %s: %w", srv.Addr, err))
			}
		}
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for scans: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
