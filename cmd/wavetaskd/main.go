// Command wavetaskd runs the wavetask MCP server.
//
// It communicates over stdio using JSON-RPC 2.0 (MCP protocol), or as a
// standalone HTTP server when configured for the "http" transport, and
// persists all task state as local files under each project's ".wave"
// directory — no external service is required.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deadwavewave/wavetask/internal/config"
	"github.com/deadwavewave/wavetask/internal/content"
	"github.com/deadwavewave/wavetask/internal/mcp"
	"github.com/deadwavewave/wavetask/internal/registry"
	"github.com/deadwavewave/wavetask/internal/scheduler"
	"github.com/deadwavewave/wavetask/internal/session"
	"github.com/deadwavewave/wavetask/internal/tools/project"
	"github.com/deadwavewave/wavetask/internal/tools/task"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "info":
			runInfo(os.Args[2:])
			return
		case "upgrade":
			handleUpgradeCommand(os.Args[2:])
			return
		case "rollback":
			handleRollbackCommand()
			return
		case "version":
			fmt.Println(Version)
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wavetaskd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	logger.Info("starting wavetaskd",
		"version", version,
		"transport", cfg.Transport.Mode,
		"registry_path", cfg.Registry.GlobalPath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(cfg.Registry.GlobalPath, logger)
	resolver := session.NewResolver(cfg, logger, reg)

	toolRegistry := mcp.NewRegistry()

	toolRegistry.Register(task.NewInit(resolver))
	toolRegistry.Register(task.NewUpdate(resolver))
	toolRegistry.Register(task.NewModify(resolver))
	toolRegistry.Register(task.NewComplete(resolver))
	toolRegistry.Register(task.NewRead(resolver))

	toolRegistry.Register(project.NewEnsure(reg))
	toolRegistry.Register(project.NewFind(reg))
	toolRegistry.Register(project.NewCleanup(reg))

	toolRegistry.RegisterPrompt(&content.GuidePrompt{})
	toolRegistry.RegisterResource(&content.EntityModelResource{})
	toolRegistry.RegisterResource(&content.EVRGateResource{})
	toolRegistry.RegisterResource(&content.ToolReferenceResource{})

	server := mcp.NewServer(toolRegistry, mcp.ServerInfo{
		Name:    cfg.Server.Name,
		Version: version,
	}, logger)

	sched := scheduler.NewScheduler(logger)
	sweepInterval := time.Duration(cfg.Locks.StaleSweepSec) * time.Second
	sched.AddJob(session.NewSweepJob(resolver), sweepInterval)
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.Transport.Mode == "http" {
		return runHTTP(ctx, server, cfg, logger)
	}
	return server.Run(ctx)
}

func runHTTP(ctx context.Context, server *mcp.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := mcp.NewHTTPServer(server, cfg.Transport.CORSOrigins, logger)
	addr := fmt.Sprintf("%s:%s", cfg.Transport.Host, cfg.Transport.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: httpServer.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http transport listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
