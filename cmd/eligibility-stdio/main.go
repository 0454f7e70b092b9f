// cmd/eligibility-stdio/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"eligibility-engine/internal/common/config"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/common/workerpool"
	"eligibility-engine/internal/eligibility"
	"eligibility-engine/internal/transport/mcp"
	"eligibility-engine/pkg/registry"
)

// stdout carries the protocol, so every log line goes to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.NewWithOutput("info", "console", "stderr")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, "stderr")
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	adapter, err := eligibility.LoadAdapter(cfg.Decision.TablePath)
	if err != nil {
		zapLog.Fatal("decision table load failed", zap.Error(err))
	}

	pool := workerpool.New(cfg.Pool.Workers, cfg.Pool.QueueSize, log)
	defer pool.Close()

	svc, err := eligibility.NewService(eligibility.ServiceOptions{
		Adapter: adapter,
		Pool:    pool,
		Logger:  log,
	})
	if err != nil {
		zapLog.Fatal("eligibility service init failed", zap.Error(err))
	}

	mcpServer, err := mcp.NewServer(svc, registry.Default(), log)
	if err != nil {
		zapLog.Fatal("mcp server init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLog.Info("Serving MCP on stdio", zap.String("tableVersion", adapter.TableVersion()))
	if err := mcpServer.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		zapLog.Error("stdio transport stopped", zap.Error(err))
	}
	zapLog.Info("Stdio server stopped")
}
