package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/textdispatch/internal/api"
	"github.com/ignite/textdispatch/internal/app"
	"github.com/ignite/textdispatch/internal/config"
	"github.com/ignite/textdispatch/internal/pkg/logger"
	"github.com/ignite/textdispatch/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file (empty uses defaults)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("Startup aborted: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if a.MemoryRepo != nil {
		janitor, err := worker.NewBatchJanitor(a.MemoryRepo, cfg.Batches.JanitorSchedule)
		if err != nil {
			log.Fatalf("Invalid batch janitor schedule: %v", err)
		}
		go janitor.Start(ctx)
	}

	health := api.NewHealthChecker(
		api.Probe{
			Name:     "chatdb",
			Ping:     a.ChatDB.Ping,
			Critical: cfg.Sender.Type != "none",
			Timeout:  3 * time.Second,
			Slow:     time.Second,
		},
		api.DatabaseProbe(a.DB),
		api.RedisProbe(a.Redis),
	)
	handlers := api.NewHandlers(a.Batches, a.Logs, api.HandlerOptions{
		OneOffPerMinute: cfg.Server.OneOffPerMinute,
		MaxUploadMB:     cfg.Server.MaxUploadMB,
	})
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		logger.Info("starting server", "addr", addr, "sender", cfg.Sender.Type,
			"batches", cfg.Batches.Store, "dry_run", cfg.Dispatch.DryRun)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down")

	// Stop the janitor first so it does not prune batches that are being
	// finalised.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := a.Batches.Shutdown(shutdownCtx); err != nil {
		logger.Error("batch shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
