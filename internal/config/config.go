// Package config loads and persists the prism.toml project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// FileName is the project configuration file looked up in the project root.
const FileName = "prism.toml"

// Config is the complete Prism configuration.
type Config struct {
	Version  int    `toml:"version" mapstructure:"version"`
	CacheDir string `toml:"cacheDir" mapstructure:"cacheDir"`

	Sources SourcesConfig `toml:"sources" mapstructure:"sources"`
	Tracker TrackerConfig `toml:"tracker" mapstructure:"tracker"`
	Watcher WatcherConfig `toml:"watcher" mapstructure:"watcher"`
	Logging LoggingConfig `toml:"logging" mapstructure:"logging"`
}

// SourcesConfig selects the files fed to the analyzer.
type SourcesConfig struct {
	Roots    []string `toml:"roots" mapstructure:"roots"`
	Include  []string `toml:"include" mapstructure:"include"`
	Excludes []string `toml:"excludes" mapstructure:"excludes"`
}

// TrackerConfig tunes change detection.
type TrackerConfig struct {
	// ContentHash switches change detection from (mtime, size) fingerprints
	// to content hashing. Off by default: the metadata fingerprint is cheap
	// and good enough for interactive rebuilds, at the cost of the occasional
	// spurious update on touch-without-edit.
	ContentHash bool `toml:"contentHash" mapstructure:"contentHash"`
}

// WatcherConfig tunes the polling file watcher.
type WatcherConfig struct {
	Enabled        bool `toml:"enabled" mapstructure:"enabled"`
	DebounceMs     int  `toml:"debounceMs" mapstructure:"debounceMs"`
	PollIntervalMs int  `toml:"pollIntervalMs" mapstructure:"pollIntervalMs"`
}

// LoggingConfig selects log format and level.
type LoggingConfig struct {
	Format string `toml:"format" mapstructure:"format"`
	Level  string `toml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Version:  1,
		CacheDir: filepath.Join(dir, ".prism"),
		Sources: SourcesConfig{
			Roots:   []string{dir},
			Include: []string{"**/*.def.json"},
			Excludes: []string{
				"**/.git/**",
				"**/.prism/**",
				"**/node_modules/**",
				"**/vendor/**",
			},
		},
		Tracker: TrackerConfig{ContentHash: false},
		Watcher: WatcherConfig{
			Enabled:        true,
			DebounceMs:     250,
			PollIntervalMs: 1000,
		},
		Logging: LoggingConfig{Format: "human", Level: "info"},
	}
}

// Load reads prism.toml from dir, falling back to defaults for every unset
// key. A missing file yields the pure defaults; a malformed file is an error.
func Load(dir string) (*Config, error) {
	defaults := DefaultConfig(dir)

	v := viper.New()
	v.SetConfigName("prism")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetDefault("version", defaults.Version)
	v.SetDefault("cacheDir", defaults.CacheDir)
	v.SetDefault("sources.roots", defaults.Sources.Roots)
	v.SetDefault("sources.include", defaults.Sources.Include)
	v.SetDefault("sources.excludes", defaults.Sources.Excludes)
	v.SetDefault("tracker.contentHash", defaults.Tracker.ContentHash)
	v.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	v.SetDefault("watcher.debounceMs", defaults.Watcher.DebounceMs)
	v.SetDefault("watcher.pollIntervalMs", defaults.Watcher.PollIntervalMs)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save writes the configuration back to dir/prism.toml.
func Save(cfg *Config, dir string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
