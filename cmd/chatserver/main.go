package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/nfrund/classroom/internal/app"
	"github.com/nfrund/classroom/internal/config"
	"github.com/nfrund/classroom/internal/logging"
	"github.com/nfrund/classroom/internal/server"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	injector := app.NewServerInjector(cfg, logger, afero.NewOsFs())
	s, err := do.Invoke[*server.Server](injector)
	if err != nil {
		logger.Error("Failed to build chat server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	go func() {
		if err := s.Start(ctx, cfg.ServerAddr); err != nil {
			logger.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	}()

	server.WaitForShutdown(ctx)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	injector.Shutdown()
	logger.Info("Server exiting")
}
