// Package main provides the entry point for feoxd.
//
// feoxd is a Redis-wire-compatible in-memory key-value server with typed
// values, TTLs, Pub/Sub and an optional persistent backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/feoxd/internal/infra/buildinfo"
	"github.com/yndnr/feoxd/internal/infra/confloader"
	"github.com/yndnr/feoxd/internal/infra/shutdown"
	"github.com/yndnr/feoxd/internal/pubsub"
	"github.com/yndnr/feoxd/internal/registry"
	"github.com/yndnr/feoxd/internal/server/config"
	"github.com/yndnr/feoxd/internal/server/respserver"
	"github.com/yndnr/feoxd/internal/storage"
	"github.com/yndnr/feoxd/internal/store"
	"github.com/yndnr/feoxd/internal/telemetry/logger"
	"github.com/yndnr/feoxd/internal/telemetry/metric"
)

// authPasswordEnv overrides requirepass when the flag is absent.
const authPasswordEnv = "FEOX_AUTH_PASSWORD"

// runtimeError marks failures that happen after a successful start.
type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func main() {
	app := &cli.App{
		Name:    "feoxd",
		Usage:   "Redis-compatible in-memory key-value server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: config.DefaultPort, Usage: "TCP port to listen on"},
			&cli.StringFlag{Name: "bind", Value: config.DefaultBind, Usage: "listen address"},
			&cli.IntFlag{Name: "threads", Value: runtime.NumCPU(), Usage: "worker parallelism (GOMAXPROCS)"},
			&cli.StringFlag{Name: "data-path", Usage: "persistent data directory (empty = memory only)"},
			&cli.StringFlag{Name: "log-level", Value: config.DefaultLogLevel, Usage: "trace|debug|info|warn|error"},
			&cli.StringFlag{Name: "requirepass", Usage: "password required by AUTH"},
			&cli.IntFlag{Name: "ratelimit", Usage: "max commands per second per IP (0 = off)"},
			&cli.StringFlag{Name: "config", Usage: "path to TOML config file"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var re *runtimeError
		if errors.As(err, &re) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})

	runtime.GOMAXPROCS(cfg.Threads)
	log.Info("starting feoxd",
		"version", buildinfo.Version,
		"bind", cfg.Bind,
		"port", cfg.Port,
		"threads", cfg.Threads,
		"persistent", cfg.DataPath != "")

	metrics := metric.New()

	st, err := initStore(cfg, metrics, log)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	hub := pubsub.New(respserver.EncodeMessage,
		pubsub.WithPublishHook(metrics.MessagesPublished.Inc))
	reg := registry.New()

	srv := respserver.New(respserver.Config{
		Addr:        fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Requirepass: cfg.Requirepass,
		RateLimit:   cfg.RateLimit,
		Port:        cfg.Port,
	}, st, hub, reg, metrics, log)

	// The keyspace must be restored before the listener opens.
	if err := srv.Start(context.Background()); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	watcher := startConfigWatcher(cCtx, srv, log)

	shutdownHandler := shutdown.NewHandler(30 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing store")
		return st.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down resp server")
		return srv.Shutdown(ctx)
	})
	if watcher != nil {
		shutdownHandler.OnShutdown(func(context.Context) error {
			return watcher.Stop()
		})
	}

	log.Info("server started")
	if err := shutdownHandler.Wait(); err != nil {
		return &runtimeError{err: fmt.Errorf("shutdown: %w", err)}
	}

	log.Info("server stopped")
	return nil
}

// loadConfig resolves configuration with precedence CLI > env > file.
func loadConfig(cCtx *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if path := cCtx.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	// Explicit CLI flags win over everything.
	overrides := map[string]any{}
	for _, name := range []string{"port", "bind", "threads", "data-path", "log-level", "requirepass", "ratelimit"} {
		if !cCtx.IsSet(name) {
			continue
		}
		switch name {
		case "data-path":
			overrides["data_path"] = cCtx.String(name)
		case "log-level":
			overrides["log_level"] = cCtx.String(name)
		case "bind", "requirepass":
			overrides[name] = cCtx.String(name)
		default:
			overrides[name] = cCtx.Int(name)
		}
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	// The auth password env var beats file and FEOXD_ env, loses to the flag.
	if !cCtx.IsSet("requirepass") {
		if v := os.Getenv(authPasswordEnv); v != "" {
			cfg.Requirepass = v
			os.Unsetenv(authPasswordEnv)
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initStore builds the keyspace, with the Badger backend when a data path is
// configured, and restores persisted entries.
func initStore(cfg *config.ServerConfig, metrics *metric.Metrics, log *slog.Logger) (*store.Store, error) {
	opts := []store.Option{
		store.WithLogger(log),
		store.WithExpireHook(func(n int) {
			metrics.KeysExpired.Add(float64(n))
		}),
	}

	if cfg.DataPath != "" {
		backend, err := storage.Open(cfg.DataPath, storage.DefaultBadgerConfig(), log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithBackend(backend))
	}

	st := store.New(opts...)
	if err := st.Load(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("restore keyspace: %w", err)
	}
	return st, nil
}

// startConfigWatcher re-applies live-tunable settings (requirepass, log
// level) when the config file changes. Returns nil when no file is in use.
func startConfigWatcher(cCtx *cli.Context, srv *respserver.Server, log *slog.Logger) *confloader.Watcher {
	path := cCtx.String("config")
	if path == "" {
		return nil
	}

	watcher, err := confloader.NewWatcher(log)
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return nil
	}
	if err := watcher.Watch(path); err != nil {
		log.Warn("cannot watch config file", "path", path, "error", err)
		return nil
	}

	watcher.OnChange(func(string) {
		fresh := config.Default()
		loader := confloader.NewLoader(confloader.WithConfigFile(path))
		if err := loader.Load(fresh); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		// Only CLI-unset values may be live-tuned; the flag keeps priority.
		if !cCtx.IsSet("requirepass") {
			srv.SetRequirepass(fresh.Requirepass)
		}
		if !cCtx.IsSet("log-level") {
			logger.SetLevel(fresh.LogLevel)
		}
		log.Info("configuration reloaded", "path", path)
	})
	watcher.Start()
	return watcher
}
