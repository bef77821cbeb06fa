// Package config handles viewer configuration loading and management.
package config

import "time"

// Config holds all viewer settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Data     DataConfig     `yaml:"data"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Scene    SceneConfig    `yaml:"scene"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
}

// DataConfig holds the model database and asset locations.
type DataConfig struct {
	Database   string `yaml:"database"`    // Path to the descriptor database JSON
	AssetRoot  string `yaml:"asset_root"`  // Directory or http(s) URL holding <name>.<ext>
	AssetExt   string `yaml:"asset_ext"`   // Model file extension
	CacheLimit int    `yaml:"cache_limit"` // Max model files kept in memory
}

// ViewerConfig holds navigation and behaviour settings.
type ViewerConfig struct {
	StateFile string       `yaml:"state_file"` // Persisted index; empty = config dir
	NextKey   string       `yaml:"next_key"`   // SDL key name for "advance"
	PrevKey   string       `yaml:"prev_key"`   // SDL key name for "retreat"
	RetryKey  string       `yaml:"retry_key"`  // SDL key name to reload the current model
	Seed      uint64       `yaml:"seed"`       // Wander RNG seed; 0 = time based
	Wander    WanderConfig `yaml:"wander"`
}

// WanderConfig tunes the idle/wander cycle.
type WanderConfig struct {
	Delay           time.Duration `yaml:"delay"`
	HalfExtent      float64       `yaml:"half_extent"`
	MinDistance     float64       `yaml:"min_distance"`
	AgitationChance float64       `yaml:"agitation_chance"`
}

// SceneConfig holds camera, light and ground settings.
type SceneConfig struct {
	Background     uint32       `yaml:"background"`
	CameraPosition [3]float32   `yaml:"camera_position"`
	CameraTarget   [3]float32   `yaml:"camera_target"`
	FOV            float32      `yaml:"fov"` // Degrees
	Near           float32      `yaml:"near"`
	Far            float32      `yaml:"far"`
	AmbientColor   uint32       `yaml:"ambient_color"`
	LightColor     uint32       `yaml:"light_color"`
	LightIntensity float32      `yaml:"light_intensity"`
	LightPosition  [3]float32   `yaml:"light_position"`
	GroundSize     float32      `yaml:"ground_size"`
	GroundColor    uint32       `yaml:"ground_color"`
	ModelColor     uint32       `yaml:"model_color"`
	Shadow         ShadowConfig `yaml:"shadow"`
}

// ShadowConfig holds the directional light's shadow map settings.
type ShadowConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Size       int     `yaml:"size"`        // Map resolution; clamped to the GL texture limit
	HalfExtent float32 `yaml:"half_extent"` // Half width of the light's orthographic box
	Near       float32 `yaml:"near"`
	Far        float32 `yaml:"far"`
	Bias       float32 `yaml:"bias"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
		},
		Data: DataConfig{
			Database:   "build/database.json",
			AssetRoot:  "build/Models",
			AssetExt:   "glb",
			CacheLimit: 8,
		},
		Viewer: ViewerConfig{
			NextKey:  "PageDown",
			PrevKey:  "PageUp",
			RetryKey: "R",
			Wander: WanderConfig{
				Delay:           time.Second,
				HalfExtent:      2,
				MinDistance:     1,
				AgitationChance: 0.5,
			},
		},
		Scene: SceneConfig{
			Background:     0xffffff,
			CameraPosition: [3]float32{1.7, 1.3, 1.3},
			CameraTarget:   [3]float32{0, 0, 0},
			FOV:            50,
			Near:           0.1,
			Far:            1000,
			AmbientColor:   0xebebeb,
			LightColor:     0xffffff,
			LightIntensity: 1,
			LightPosition:  [3]float32{10, 10, -10},
			GroundSize:     5,
			GroundColor:    0x0000ff,
			ModelColor:     0xc8c8c8,
			Shadow: ShadowConfig{
				Enabled:    true,
				Size:       4096,
				HalfExtent: 5,
				Near:       0.001,
				Far:        50,
				Bias:       0.0005,
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
