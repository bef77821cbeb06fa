package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagDatabase   = flag.String("database", "", "Path to the model database JSON")
	flagAssets     = flag.String("assets", "", "Model directory or http(s) URL")
	flagSeed       = flag.Uint64("seed", 0, "Wander RNG seed (0 = random)")
	flagProfile    = flag.String("profile", "", "Write a profile into this directory")
	flagProfMode   = flag.String("profile-mode", "cpu", "Profile kind: cpu or mem")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// ProfileDir returns the --profile directory, empty when profiling is off.
func ProfileDir() string {
	return *flagProfile
}

// ProfileMode returns the --profile-mode value.
func ProfileMode() string {
	return *flagProfMode
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagDatabase != "" {
		cfg.Data.Database = *flagDatabase
	}
	if *flagAssets != "" {
		cfg.Data.AssetRoot = *flagAssets
	}
	if *flagSeed != 0 {
		cfg.Viewer.Seed = *flagSeed
	}
}
