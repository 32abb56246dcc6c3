// Package app wires the chat services together with a samber/do injector.
// The server and the terminal client each get their own package of
// providers.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/classroom/internal/config"
	"github.com/nfrund/classroom/internal/presence"
	"github.com/nfrund/classroom/internal/pubsub"
	"github.com/nfrund/classroom/internal/server"
	"github.com/nfrund/classroom/internal/storage"
)

// Tracing owns the tracer handed to the bus and flushes it on shutdown.
type Tracing struct {
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// ServerPackage registers every service the development chat server needs.
// The injector must already hold a *config.Config, a *slog.Logger and an
// afero.Fs.
func ServerPackage(i do.Injector) {
	do.Provide(i, provideStore)
	do.Provide(i, provideTracing)
	do.Provide(i, provideBus)
	do.Provide(i, providePresence)
	do.Provide(i, provideServer)
}

// NewServerInjector returns an injector ready to build a *server.Server.
func NewServerInjector(cfg *config.Config, logger *slog.Logger, fs afero.Fs) *do.RootScope {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)
	do.ProvideValue(i, fs)
	ServerPackage(i)
	return i
}

func provideStore(i do.Injector) (*storage.MemoryStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	fs := do.MustInvoke[afero.Fs](i)

	store := storage.NewMemoryStore(cfg.ServerHistoryLimit)
	if cfg.FixturesPath == "" {
		logger.Warn("No fixtures configured, the chat server starts empty")
		return store, nil
	}

	fixtures, err := storage.LoadFixtures(fs, cfg.FixturesPath)
	if err != nil {
		return nil, err
	}
	if err := fixtures.Seed(context.Background(), store); err != nil {
		return nil, fmt.Errorf("failed to seed %s: %w", cfg.FixturesPath, err)
	}
	logger.Info("Loaded fixtures", "path", cfg.FixturesPath, "rooms", len(fixtures.Rooms), "members", len(fixtures.Members), "messages", len(fixtures.Messages))
	return store, nil
}

func provideTracing(i do.Injector) (*Tracing, error) {
	cfg := do.MustInvoke[*config.Config](i)
	tracer, shutdown, err := pubsub.SetupTracing(context.Background(), pubsub.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.TracingServiceName,
		ZipkinURL:   cfg.ZipkinURL,
	})
	if err != nil {
		return nil, err
	}
	return &Tracing{Tracer: tracer, shutdown: shutdown}, nil
}

func provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	tracing, err := do.Invoke[*Tracing](i)
	if err != nil {
		return nil, err
	}
	return pubsub.NewWatermillBridge(
		pubsub.WithLogger(logger),
		pubsub.WithTracer(tracing.Tracer),
	), nil
}

func providePresence(i do.Injector) (*presence.Service, error) {
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	return presence.NewService(bus, presence.WithLogger(do.MustInvoke[*slog.Logger](i))), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	store, err := do.Invoke[*storage.MemoryStore](i)
	if err != nil {
		return nil, err
	}
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	presenceSvc, err := do.Invoke[*presence.Service](i)
	if err != nil {
		return nil, err
	}
	return server.New(
		do.MustInvoke[*config.Config](i),
		do.MustInvoke[*slog.Logger](i),
		store,
		bus,
		presenceSvc,
	), nil
}
