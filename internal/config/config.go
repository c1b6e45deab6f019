package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultDir               = "config"
	DefaultFile              = "sound_volumes.json"
	DefaultSettleDelay       = 50 * time.Millisecond
	DefaultDebounce          = 500 * time.Millisecond
	DefaultHTTPBind          = "127.0.0.1"
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultAuthHeader        = "X-API-Key"
)

// Config is the top-level daemon configuration.
type Config struct {
	Settings SettingsConfig `yaml:"settings"`
	Content  ContentConfig  `yaml:"content"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// SettingsConfig controls where the volume table lives and how it is watched.
type SettingsConfig struct {
	// Dir is the directory holding the volume file (default "config").
	Dir string `yaml:"dir"`

	// File is the volume file name inside Dir.
	File string `yaml:"file"`

	// Watch enables reloading on external edits. A nil value means true.
	Watch *bool `yaml:"watch"`

	// SettleDelay is how long the watcher waits after a change notification
	// before inspecting events.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// Debounce is the window over which watcher triggers merge into one
	// reload, run when the window closes.
	Debounce time.Duration `yaml:"debounce"`
}

// WatchEnabled reports whether file watching is on.
func (s SettingsConfig) WatchEnabled() bool {
	return s.Watch == nil || *s.Watch
}

// ContentConfig describes where known sound identifiers come from.
type ContentConfig struct {
	// AssetsDir is scanned for <namespace>/sounds and <namespace>/music.
	// Empty disables scanning.
	AssetsDir string `yaml:"assets_dir"`

	// Identifiers are added to the scanned set verbatim.
	Identifiers []string `yaml:"identifiers"`
}

// HTTPConfig controls the local editor API.
type HTTPConfig struct {
	// Bind is the listen address. The editor API is local by default.
	Bind string `yaml:"bind"`

	// Port is the TCP port for the REST API, websocket feed and metrics.
	Port int `yaml:"port"`

	// BroadcastInterval is how often the websocket feed resends the table
	// when nothing changed.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Auth configures how API clients authenticate.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies the API authentication mode.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key (default X-API-Key).
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel returns Level as a slog.Level. validate guarantees it parses.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Addr returns the host:port the HTTP server listens on.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Bind, strconv.Itoa(h.Port))
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Settings: SettingsConfig{
			Dir:         DefaultDir,
			File:        DefaultFile,
			SettleDelay: DefaultSettleDelay,
			Debounce:    DefaultDebounce,
		},
		HTTP: HTTPConfig{
			Bind:              DefaultHTTPBind,
			Port:              DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
			Auth: AuthConfig{
				Mode:   "none",
				Header: DefaultAuthHeader,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Settings.Dir == "" {
		return fmt.Errorf("settings.dir is required")
	}
	if cfg.Settings.File == "" {
		return fmt.Errorf("settings.file is required")
	}
	if cfg.Settings.SettleDelay < 0 {
		return fmt.Errorf("settings.settle_delay must not be negative")
	}
	if cfg.Settings.Debounce < 0 {
		return fmt.Errorf("settings.debounce must not be negative")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range [1, 65535]", cfg.HTTP.Port)
	}
	if cfg.HTTP.BroadcastInterval <= 0 {
		return fmt.Errorf("http.broadcast_interval must be positive")
	}
	switch cfg.HTTP.Auth.Mode {
	case "apikey":
		if cfg.HTTP.Auth.KeyEnv == "" {
			return fmt.Errorf("http.auth.key_env is required for mode apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("http.auth.mode %q unknown: want apikey|none", cfg.HTTP.Auth.Mode)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
