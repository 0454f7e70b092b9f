// cmd/eligibility-server/main.go
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"eligibility-engine/internal/alerting"
	"eligibility-engine/internal/audit"
	"eligibility-engine/internal/cache"
	"eligibility-engine/internal/common/camunda"
	"eligibility-engine/internal/common/config"
	"eligibility-engine/internal/common/database"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/common/metrics"
	"eligibility-engine/internal/common/observability"
	"eligibility-engine/internal/common/workerpool"
	"eligibility-engine/internal/eligibility"
	"eligibility-engine/internal/server"
	"eligibility-engine/internal/transport/mcp"
	eul "eligibility-engine/internal/workers/eligibility/evaluate-unpaid-leave"
	"eligibility-engine/pkg/registry"
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
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting eligibility engine",
		zap.String("version", cfg.App.Version),
		zap.String("address", cfg.Server.Address),
	)

	ctx := context.Background()

	// --- Metrics & tracing ---
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector, err := metrics.NewCollector(promRegistry)
	if err != nil {
		zapLog.Fatal("metrics registration failed", zap.Error(err))
	}

	obs, err := observability.New(observability.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		Registerer:     promRegistry,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
	})
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	// --- Decision table ---
	adapter, err := eligibility.LoadAdapter(cfg.Decision.TablePath)
	if err != nil {
		zapLog.Fatal("decision table load failed", zap.Error(err))
	}
	zapLog.Info("Decision table loaded", zap.String("tableVersion", adapter.TableVersion()))

	pool := workerpool.New(cfg.Pool.Workers, cfg.Pool.QueueSize, log)

	opts := eligibility.ServiceOptions{
		Adapter:   adapter,
		Pool:      pool,
		Metrics:   collector,
		Logger:    log,
		Telemetry: obs,
	}
	var checks []server.ReadinessCheck

	// --- Result cache ---
	var redisClient *database.RedisClient
	if cfg.Cache.Enabled {
		redisClient = database.NewRedis(cfg.Database.Redis)
		if err := retryWithBackoff(func() error { return redisClient.Ping(ctx) }, 10, 2*time.Second, zapLog, "Redis connection"); err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		opts.Cache = cache.NewRedisCache(redisClient.Client, config.GetDuration(cfg.Cache.TTL))
		checks = append(checks, server.ReadinessCheck{Name: "redis", Check: redisClient.Ping})
		zapLog.Info("Redis connected successfully")
	}

	// --- Audit trail ---
	var dispatcher *audit.Dispatcher
	var pg *database.PostgresClient
	if cfg.Audit.Enabled() {
		var writers []audit.Writer

		if cfg.Audit.PostgresEnabled {
			err = retryWithBackoff(func() error {
				var err error
				pg, err = database.NewPostgres(cfg.Database.Postgres)
				if err != nil {
					return err
				}
				return pg.Ping(ctx)
			}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
			if err != nil {
				zapLog.Fatal("postgres failed after retries", zap.Error(err))
			}

			store := audit.NewPostgresStore(pg)
			if err := store.EnsureSchema(ctx); err != nil {
				zapLog.Fatal("audit schema setup failed", zap.Error(err))
			}
			writers = append(writers, store)
			checks = append(checks, server.ReadinessCheck{Name: "postgres", Check: pg.Ping})
			zapLog.Info("PostgreSQL connected successfully")
		}

		if cfg.Audit.ElasticsearchEnabled {
			var esClient *database.ElasticsearchClient
			err = retryWithBackoff(func() error {
				var err error
				esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
				if err != nil {
					return err
				}
				return esClient.Ping(ctx)
			}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
			if err != nil {
				zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
			}

			writers = append(writers, audit.NewElasticsearchIndex(esClient.Client, cfg.Audit.Index))
			checks = append(checks, server.ReadinessCheck{Name: "elasticsearch", Check: esClient.Ping})
			zapLog.Info("Elasticsearch connected successfully")
		}

		dispatcher = audit.NewDispatcher(cfg.Audit.QueueSize, log, writers...)
		opts.Audit = dispatcher
	}

	// --- Operator alerts ---
	var notifier *alerting.Notifier
	if cfg.Alerts.Enabled {
		notifier, err = alerting.NewNotifier(ctx, cfg.Alerts, cfg.App.Name, log)
		if err != nil {
			zapLog.Fatal("alerting init failed", zap.Error(err))
		}
		opts.Alerter = notifier
	}

	svc, err := eligibility.NewService(opts)
	if err != nil {
		zapLog.Fatal("eligibility service init failed", zap.Error(err))
	}

	tools := registry.Default()
	mcpServer, err := mcp.NewServer(svc, tools, log)
	if err != nil {
		zapLog.Fatal("mcp server init failed", zap.Error(err))
	}

	// --- Zeebe job worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if cfg.Camunda.Enabled && config.IsWorkerEnabled(cfg, eul.TaskType) {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFromSettings(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}

		wcfg := config.GetWorkerConfig(cfg, eul.TaskType)
		handler := eul.NewHandler(eul.LoadConfig(wcfg), svc, collector, log)
		jobWorker = camunda.StartWorker(zeebe.GetClient(), eul.TaskType, wcfg, cfg.Camunda, handler.Handle, log)
		checks = append(checks, server.ReadinessCheck{Name: "zeebe", Check: zeebe.HealthCheck})
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- HTTP ---
	httpServer := &http.Server{
		Addr: cfg.Server.Address,
		Handler: server.NewRouter(server.Options{
			Evaluator:          svc,
			MCP:                mcp.NewHTTPHandler(mcpServer,
				mcp.WithSessionTTL(config.GetDuration(cfg.Server.SessionTTL)),
				mcp.WithMaxSessions(cfg.Server.MaxSessions)),
			Registry:           tools,
			Gatherer:           promRegistry,
			Checks:             checks,
			RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
			RequestTimeout:     config.GetDuration(cfg.Server.RequestTimeout),
			Logger:             log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := pool.Close(); err != nil {
		zapLog.Error("Error closing worker pool", zap.Error(err))
	}
	if dispatcher != nil {
		_ = dispatcher.Close()
		if dropped := dispatcher.Dropped(); dropped > 0 {
			zapLog.Warn("Audit records dropped", zap.Int64("count", dropped))
		}
	}
	if notifier != nil {
		notifier.Wait()
	}
	if pg != nil {
		_ = pg.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down telemetry", zap.Error(err))
	}

	zapLog.Info("Eligibility engine stopped gracefully")
}
