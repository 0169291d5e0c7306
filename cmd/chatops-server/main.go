// cmd/chatops-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"infra-chatops/internal/api"
	"infra-chatops/internal/bootstrap"
	"infra-chatops/internal/common/camunda"
	"infra-chatops/internal/common/config"
	"infra-chatops/internal/common/database"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/observability"
	"infra-chatops/internal/engine"
	"infra-chatops/internal/security"
	"infra-chatops/internal/service"
	"infra-chatops/internal/store"
	chatopscommand "infra-chatops/internal/workers/chatops/chatops-command"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting chatops server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obsOpts := observability.Options{ServiceName: cfg.Tracing.ServiceName}
	if cfg.Tracing.Enabled {
		obsOpts.JaegerEndpoint = cfg.Tracing.JaegerEndpoint
	}
	obs := observability.New(obsOpts)
	defer obs.Shutdown()

	ctx := context.Background()
	var checks []api.Option
	var archivers []store.Archiver

	// --- Catalogs & engine ---
	cats, err := bootstrap.LoadCatalogs(cfg.Catalog)
	if err != nil {
		zapLog.Fatal("catalog load failed", zap.Error(err))
	}
	handlers, err := bootstrap.BuildHandlers(cfg, bootstrap.Integrations{}, log)
	if err != nil {
		zapLog.Fatal("step handlers failed", zap.Error(err))
	}
	eng, err := bootstrap.NewEngine(cfg, cats, handlers, log,
		engine.WithRecorder(obs),
		engine.WithTracer(obs.Tracer()),
	)
	if err != nil {
		zapLog.Fatal("engine setup failed", zap.Error(err))
	}
	zapLog.Info("Catalogs loaded",
		zap.Int("intents", len(cats.Library.Intents())),
		zap.Strings("workflows", cats.Templates.Names()),
	)

	// --- Report store: Redis or in-memory ---
	var reports store.ReportStore = store.NewMemoryStore()
	if cfg.Database.Redis.Enabled {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			var err error
			rc, err = database.NewRedis(dialCtx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		reports = store.NewRedisStore(rc.Client, rc.KeyPrefix, rc.ReportTTL)
		checks = append(checks, api.WithReadinessCheck("redis", rc.Ping))
		zapLog.Info("Redis report store connected")
	}

	// --- PostgreSQL audit trail ---
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			var err error
			pg, err = database.NewPostgres(dialCtx, cfg.Database.Postgres)
			return err
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		audit := store.NewAuditRepository(pg.DB)
		if err := audit.Migrate(ctx); err != nil {
			zapLog.Fatal("audit schema migration failed", zap.Error(err))
		}
		archivers = append(archivers, audit)
		checks = append(checks, api.WithReadinessCheck("postgres", pg.Ping))
		zapLog.Info("PostgreSQL audit trail connected")
	}

	// --- Elasticsearch execution index ---
	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		indexer := store.NewSearchIndexer(es.Client, es.Index)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Warn("could not create execution index, documents will use dynamic mapping", zap.Error(err))
		}
		archivers = append(archivers, indexer)
		checks = append(checks, api.WithReadinessCheck("elasticsearch", es.Ping))
		zapLog.Info("Elasticsearch indexer configured", zap.String("index", es.Index))
	}

	// --- Command service ---
	svc := service.New(bootstrap.NewInterpreter(cfg, cats), cats.Commands, eng, reports, log,
		service.WithGate(security.NewGate(cfg.Security)),
		service.WithArchivers(archivers...),
		service.WithMaxConcurrent(cfg.Engine.MaxConcurrentWorkflows),
	)

	// --- Zeebe chatops-command worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClient(ctx, cfg.Camunda, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		handler := chatopscommand.NewHandler(chatopscommand.LoadConfig(), svc, log)
		jobWorker = camunda.StartWorker(zeebe.Zeebe(), chatopscommand.TaskType, cfg.Camunda, handler, log)
		checks = append(checks, api.WithReadinessCheck("zeebe", zeebe.HealthCheck))
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- HTTP API, health & metrics ---
	e := api.NewEcho(api.NewServer(svc, log, checks...))
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Workflows still running at shutdown", zap.Error(err), zap.Int("active", svc.Active()))
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("ChatOps server stopped gracefully")
}
