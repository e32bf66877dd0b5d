package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trashgame/trash-server-go/internal/config"
	"github.com/trashgame/trash-server-go/internal/game"
	"github.com/trashgame/trash-server-go/internal/server"
	"github.com/trashgame/trash-server-go/internal/storage"
)

var (
	configPath = flag.String("config", "", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting trash server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Persistence: sqlite when a path is configured, in-memory otherwise.
	var store game.Store
	if cfg.Storage.Path != "" {
		sqlStore, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			logger.Fatal("failed to open storage", zap.Error(err))
		}
		defer sqlStore.Close()
		store = sqlStore
		logger.Info("sqlite storage initialized", zap.String("path", cfg.Storage.Path))
	} else {
		store = storage.NewMemoryStore()
		logger.Info("in-memory storage initialized; saves are lost on restart")
	}

	controller := game.NewController(game.ControllerConfig{
		Logger:    logger.Named("game"),
		Store:     store,
		UndoLimit: cfg.Game.UndoLimit,
		Seed:      cfg.Game.Seed,
	})
	logger.Info("game controller initialized",
		zap.Int("undo_limit", cfg.Game.UndoLimit),
	)

	scheduler := game.NewScheduler(controller, cfg.Game.AIMoveDelay, nil, logger.Named("ai"))
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info("ai scheduler initialized",
		zap.Duration("move_delay", cfg.Game.AIMoveDelay),
	)

	gateway := server.NewGateway(controller, logger.Named("gateway"))
	defer gateway.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      gateway.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting http server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(serveErr))
		}
	}()

	logger.Info("trash server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	logger.Info("trash server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
