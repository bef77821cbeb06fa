// Package main is the entry point for the Midgard model viewer.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-viewer/internal/config"
	"github.com/Faultbox/midgard-viewer/internal/database"
	"github.com/Faultbox/midgard-viewer/internal/game"
	"github.com/Faultbox/midgard-viewer/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("=== Midgard Viewer ===")
	logger.Debug("config loaded", zap.Any("config", cfg))

	if dir := config.ProfileDir(); dir != "" {
		mode := profile.CPUProfile
		if config.ProfileMode() == "mem" {
			mode = profile.MemProfileAllocs
		}
		p := profile.Start(mode, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet)
		defer p.Stop()
		logger.Info("profiling enabled", zap.String("dir", dir), zap.String("mode", config.ProfileMode()))
	}

	db, err := database.Load(cfg.Data.Database)
	if err != nil {
		logger.Error("failed to load model database", zap.String("path", cfg.Data.Database), zap.Error(err))
		return 1
	}
	logger.Info("model database loaded", zap.Int("models", db.Len()))

	g, err := game.New(cfg, db)
	if err != nil {
		logger.Error("failed to create viewer", zap.Error(err))
		return 1
	}
	defer g.Close()

	if err := g.Run(); err != nil {
		logger.Error("viewer error", zap.Error(err))
		return 1
	}

	logger.Info("viewer closed normally")
	return 0
}
