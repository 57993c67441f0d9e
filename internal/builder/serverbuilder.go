// Package builder assembles a runnable server from configuration.
package builder

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/FreePeak/emulator-mcp-server/internal/config"
	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/auth"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/server"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/storage"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/telemetry"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/wsconn"
	"github.com/FreePeak/emulator-mcp-server/internal/interfaces/rest"
	"github.com/FreePeak/emulator-mcp-server/internal/usecases"
	"github.com/FreePeak/emulator-mcp-server/internal/usecases/emulator"
)

// ServerBuilder implements the Builder pattern for creating emulator MCP servers
type ServerBuilder struct {
	cfg     *config.Config
	name    string
	version string
	logger  *logging.Logger

	fs      afero.Fs
	tokens  domain.TokenStore
	runtime emulator.Runtime
	metrics emulator.MetricsSource
}

// NewServerBuilder creates a builder for cfg with default collaborators
func NewServerBuilder(cfg *config.Config) *ServerBuilder {
	return &ServerBuilder{
		cfg:     cfg,
		name:    "emulator-mcp",
		version: "1.0.0",
		logger:  logging.NewNop(),
	}
}

// WithName sets the server name
func (b *ServerBuilder) WithName(name string) *ServerBuilder {
	b.name = name
	return b
}

// WithVersion sets the server version
func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.version = version
	return b
}

// WithLogger sets the logger
func (b *ServerBuilder) WithLogger(logger *logging.Logger) *ServerBuilder {
	b.logger = logger
	return b
}

// WithFilesystem replaces the on-disk storage tree. The catalogue is skipped.
func (b *ServerBuilder) WithFilesystem(fs afero.Fs) *ServerBuilder {
	b.fs = fs
	return b
}

// WithTokenStore replaces the configured token store
func (b *ServerBuilder) WithTokenStore(store domain.TokenStore) *ServerBuilder {
	b.tokens = store
	return b
}

// WithRuntime replaces the simulated emulator runtime
func (b *ServerBuilder) WithRuntime(rt emulator.Runtime) *ServerBuilder {
	b.runtime = rt
	return b
}

// WithMetrics replaces the process sampler
func (b *ServerBuilder) WithMetrics(m emulator.MetricsSource) *ServerBuilder {
	b.metrics = m
	return b
}

// App is a fully wired server.
type App struct {
	HTTP     *rest.MCPServer
	Server   *server.Server
	Sessions *server.SessionManager
	Service  *usecases.ServerService
	Issuer   *auth.Issuer

	cfg     *config.Config
	logger  *logging.Logger
	closers []func() error
}

// Build wires every component. Close the returned App to release storage
// and token store connections.
func (b *ServerBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, errors.New("missing config")
	}
	cfg := b.cfg
	app := &App{cfg: cfg, logger: b.logger}

	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	builtin, err := emulator.ParseBuiltinROMs(cfg.Storage.BuiltinROMs)
	if err != nil {
		return nil, err
	}

	assets, saves, err := b.buildStorage(app)
	if err != nil {
		return fail(err)
	}

	tokens, err := b.buildTokenStore(ctx, app)
	if err != nil {
		return fail(err)
	}
	app.Issuer = auth.NewIssuer(tokens,
		auth.WithTTL(cfg.Auth.TokenTTL),
		auth.WithLogger(b.logger.Named("auth")),
	)

	metrics := b.metrics
	if metrics == nil {
		sampler, err := telemetry.NewSampler(b.logger.Named("telemetry"))
		if err != nil {
			b.logger.Warn("process metrics unavailable", logging.Fields{"error": err})
		} else {
			metrics = sampler
		}
	}

	runtime := b.runtime
	if runtime == nil {
		runtime = emulator.NewSimulatedRuntime(cfg.Emulator.LoadDelay)
	}

	app.Sessions = server.NewSessionManager(
		server.WithIdleTTL(cfg.Session.IdleTTL),
		server.WithCloseHandler(runtime.Unload),
		server.WithSessionLogger(b.logger.Named("sessions")),
	)

	handlers := emulator.NewTools(emulator.Deps{
		Sessions:   app.Sessions,
		Assets:     assets,
		SaveStates: saves,
		Runtime:    runtime,
		Metrics:    metrics,
		Builtin:    builtin,
		Logger:     b.logger.Named("tools"),
	})
	registry, err := server.NewRegistry(handlers...)
	if err != nil {
		return fail(err)
	}

	app.Server = server.NewServer(registry, app.Sessions, app.Issuer).
		WithLogger(b.logger.Named("dispatch")).
		WithMaxConcurrentCalls(cfg.Server.MaxConcurrentCalls)

	app.Service = usecases.NewServerService(usecases.ServerConfig{
		Name:     b.name,
		Version:  b.version,
		Tools:    app.Server,
		Sessions: app.Sessions,
	})

	web := rest.CookieSessions{
		CookieName: cfg.Auth.CookieName,
		Operators:  cfg.Auth.WebSessions,
	}
	app.HTTP = rest.NewMCPServer(app.Service, app.Issuer, app.Server, web, cfg.Server.Addr,
		rest.WithLogger(b.logger.Named("http")),
		rest.WithConnOptions(wsconn.Options{
			ReadLimit:    cfg.Server.ReadLimit,
			WriteTimeout: cfg.Server.WriteTimeout,
		}),
	)

	b.logger.Info("server built", logging.Fields{
		"tools":       registry.Len(),
		"token_store": cfg.Auth.Store,
		"builtin":     len(builtin),
	})
	return app, nil
}

func (b *ServerBuilder) buildStorage(app *App) (*storage.AssetStore, *storage.SaveStateStore, error) {
	logger := b.logger.Named("storage")
	fs := b.fs
	var opts []storage.AssetStoreOption

	if fs == nil {
		var err error
		fs, err = storage.NewFS(b.cfg.Storage.Root)
		if err != nil {
			return nil, nil, err
		}
		if b.cfg.Storage.CatalogPath != "" {
			catalog, err := storage.OpenCatalog(catalogPath(b.cfg.Storage.Root, b.cfg.Storage.CatalogPath))
			if err != nil {
				return nil, nil, err
			}
			app.closers = append(app.closers, catalog.Close)
			opts = append(opts, storage.WithCatalog(catalog))
		}
	}

	opts = append(opts, storage.WithAssetLogger(logger))
	return storage.NewAssetStore(fs, opts...), storage.NewSaveStateStore(fs, logger), nil
}

func (b *ServerBuilder) buildTokenStore(ctx context.Context, app *App) (domain.TokenStore, error) {
	if b.tokens != nil {
		return b.tokens, nil
	}
	if b.cfg.Auth.Store != config.StoreRedis {
		return auth.NewMemoryTokenStore(), nil
	}

	client, err := auth.DialRedis(ctx, auth.RedisOptions{
		Addr:     b.cfg.Redis.Addr,
		Password: b.cfg.Redis.Password,
		DB:       b.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client.Close)
	return auth.NewRedisTokenStore(client), nil
}

// catalogPath resolves a relative catalogue path against the storage root.
func catalogPath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Run serves until ctx is done, then shuts down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	var wg conc.WaitGroup
	wg.Go(func() {
		a.Sessions.RunSweeper(sweepCtx, a.cfg.Session.SweepInterval)
	})

	errCh := make(chan error, 1)
	wg.Go(func() {
		errCh <- a.HTTP.Start()
	})

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Error("HTTP server failed", logging.Fields{"error": runErr})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := a.HTTP.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "stop HTTP server")
	}
	if err := a.Server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "close connections")
	}
	stopSweep()
	wg.Wait()
	return runErr
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close releases the catalogue and token store connections.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
