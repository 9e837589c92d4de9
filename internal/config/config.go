package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds application configuration. It is read once at process start
// and handed to the engine as plain parameters; the engine itself keeps no
// global configuration state.
type Config struct {
	// BaseDir is where blackcell keeps its state (~/.blackcell).
	BaseDir string `mapstructure:"base_dir"`
	// LogRoot overrides the raw log root (default: BaseDir/logs).
	LogRoot string `mapstructure:"log_root"`
	// IndexPath overrides the structured index location
	// (default: BaseDir/blackcell.db).
	IndexPath string `mapstructure:"index_path"`
	// MaxLogSize is the raw log size threshold in bytes above which closed
	// sessions' files are pruned.
	MaxLogSize int64 `mapstructure:"max_log_size"`

	Quiet   bool `mapstructure:"quiet"`
	Verbose bool `mapstructure:"verbose"`
	NoColor bool `mapstructure:"no_color"`
}

// DefaultMaxLogSize matches the threshold the shell snippet uses.
const DefaultMaxLogSize int64 = 5_000_000

// Default returns a Config with default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BaseDir:    filepath.Join(home, ".blackcell"),
		MaxLogSize: DefaultMaxLogSize,
	}
}

// Normalize fills derived paths that were not set explicitly.
func (c *Config) Normalize() {
	if c.LogRoot == "" {
		c.LogRoot = filepath.Join(c.BaseDir, "logs")
	}
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.BaseDir, "blackcell.db")
	}
	if c.MaxLogSize <= 0 {
		c.MaxLogSize = DefaultMaxLogSize
	}
}

// Load loads configuration from files and environment.
// Config file search order (highest precedence first):
// 1. ./.blackcell.yaml or ./.blackcell.yml
// 2. ~/.blackcell.yaml or ~/.blackcell.yml
// 3. $XDG_CONFIG_HOME/blackcell/config.yaml (or ~/.config/blackcell/config.yaml)
// 4. /etc/blackcell/config.yaml
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		v := viper.New()
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	cfg.Normalize()
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ConfigFile returns the path to the config file that would be loaded.
func ConfigFile() string {
	return findConfigFile()
}

// findConfigFile searches for a config file in standard locations.
func findConfigFile() string {
	names := []string{".blackcell.yaml", ".blackcell.yml", "blackcell.yaml", "blackcell.yml"}

	var searchPaths []string
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, home)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(configDir, "blackcell"))
	}
	searchPaths = append(searchPaths, "/etc/blackcell")

	for _, dir := range searchPaths {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		path := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// applyEnvOverrides applies BLACKCELL_* environment variables, the same
// knobs the shell snippet honors.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLACKCELL_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("BLACKCELL_LOG_ROOT"); v != "" {
		cfg.LogRoot = v
	}
	if v := os.Getenv("BLACKCELL_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("BLACKCELL_MAX_LOG_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxLogSize = n
		}
	}
	if v := os.Getenv("BLACKCELL_QUIET"); v == "true" || v == "1" {
		cfg.Quiet = true
	}
	if v := os.Getenv("BLACKCELL_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("BLACKCELL_NO_COLOR"); v == "true" || v == "1" {
		cfg.NoColor = true
	}
}
