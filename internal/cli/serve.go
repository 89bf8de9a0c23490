package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/spf13/cobra"
	"github.com/unitone-ai/rampart/internal/api"
	"github.com/unitone-ai/rampart/internal/config"
	"github.com/unitone-ai/rampart/internal/engine"
	"github.com/unitone-ai/rampart/internal/engine/guards"
	"github.com/unitone-ai/rampart/internal/fingerprint"
	"github.com/unitone-ai/rampart/internal/sandbox"
	"github.com/unitone-ai/rampart/internal/storage"
	"github.com/unitone-ai/rampart/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rampart guard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("RAMPART_CONFIG")
			}
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to route config YAML (or set RAMPART_CONFIG; omit to load routes from Postgres)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	// Logger
	logger := mustBuildLogger(envOrDefault("RAMPART_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("RAMPART_HTTP_PORT", "8080")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	staticKey := os.Getenv("RAMPART_API_KEY")
	cacheTTL := envOrDefaultInt("RAMPART_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting rampart server",
		zap.String("http_port", httpPort),
		zap.String("config_path", configPath),
		zap.Bool("postgres", postgresDSN != ""),
		zap.Bool("clickhouse", clickhouseDSN != ""),
	)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (route and key storage)
	var pgStore *store.Store
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Error("failed to open postgres", zap.Error(err))
			return err
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Error("failed to ping postgres", zap.Error(err))
			return err
		}
		pgStore = store.NewStore(db)
		logger.Info("postgres connected")
	}

	// Initial routes: YAML file when given, otherwise Postgres.
	var routes []engine.RouteConfig
	switch {
	case configPath != "":
		var err error
		routes, err = config.Load(configPath)
		if err != nil {
			logger.Error("failed to load route config", zap.Error(err))
			return err
		}
	case pgStore != nil:
		var err error
		routes, err = pgStore.LoadRouteConfigs(ctx)
		if err != nil {
			logger.Error("failed to load routes from postgres", zap.Error(err))
			return err
		}
	default:
		return fmt.Errorf("no route source: set --config or POSTGRES_DSN")
	}

	// Guard collaborators. The fingerprint store is shared across config
	// swaps so rug pull baselines survive a reload.
	deps := guards.Deps{
		Fingerprints: fingerprint.NewStore(),
		Sandbox:      sandbox.Unavailable{},
		Logger:       logger,
	}
	provider := config.NewProvider(routes, deps, logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot reload only applies to the YAML path; Postgres-backed routes
	// reload through the admin API.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, provider, logger)
		if err != nil {
			logger.Error("failed to create config watcher", zap.Error(err))
			return err
		}
		if err := watcher.Start(runCtx); err != nil {
			logger.Error("failed to start config watcher", zap.Error(err))
			return err
		}
	}

	apiDeps := &api.Dependencies{
		Provider:  provider,
		Store:     pgStore,
		Writer:    writer,
		Logger:    logger,
		CacheTTL:  time.Duration(cacheTTL) * time.Second,
		StaticKey: staticKey,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(apiDeps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logger.Info("received signal, shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("rampart server stopped")
	return nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
