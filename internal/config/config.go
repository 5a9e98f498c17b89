// Package config loads notesearch configuration from defaults, YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/notesearch/internal/store"
)

// Project configuration file names, in lookup order.
const (
	ProjectConfigFile     = ".notesearch.yaml"
	projectConfigFileAlt  = ".notesearch.yml"
	projectConfigFileTOML = ".notesearch.toml"
)

// Config holds all notesearch configuration.
type Config struct {
	Version int         `yaml:"version" toml:"version"`
	Index   IndexConfig `yaml:"index" toml:"index"`
	Watch   WatchConfig `yaml:"watch" toml:"watch"`
	Log     LogConfig   `yaml:"log" toml:"log"`
}

// IndexConfig configures the guarded index writer.
type IndexConfig struct {
	// UserDir holds the index directory. Empty uses a per-process temporary
	// directory.
	UserDir string `yaml:"user_dir" toml:"user_dir"`

	// Backend is "bleve" or "sqlite".
	Backend string `yaml:"backend" toml:"backend"`

	// Analyzer is "standard", "english" or "simple".
	Analyzer string `yaml:"analyzer" toml:"analyzer"`

	// KeywordFields are indexed untokenized for exact term matching.
	KeywordFields []string `yaml:"keyword_fields" toml:"keyword_fields"`

	// Permits is how many writer operations may run at once.
	Permits int `yaml:"permits" toml:"permits"`

	// AcquireTimeout bounds the wait for a writer permit ("" waits forever).
	AcquireTimeout string `yaml:"acquire_timeout,omitempty" toml:"acquire_timeout,omitempty"`
}

// WatchConfig configures the notes directory watcher.
type WatchConfig struct {
	DebounceWindow string   `yaml:"debounce_window" toml:"debounce_window"`
	Extensions     []string `yaml:"extensions" toml:"extensions"`
	// Ignore lists glob patterns (doublestar syntax) for paths never indexed.
	Ignore []string `yaml:"ignore,omitempty" toml:"ignore,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// NewConfig returns a configuration with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			UserDir:       defaultUserDir(),
			Backend:       string(store.BackendBleve),
			Analyzer:      store.AnalyzerStandard,
			KeywordFields: store.DefaultAnalysisConfig().KeywordFields,
			Permits:       5,
		},
		Watch: WatchConfig{
			DebounceWindow: "200ms",
			Extensions:     []string{".md", ".markdown", ".txt", ".org"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultUserDir returns ~/.notesearch, or "" when the home directory is
// unknown so the index falls back to a temporary directory.
func defaultUserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".notesearch")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/notesearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/notesearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "notesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "notesearch", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseFile(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration for the given project directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/notesearch/config.yaml)
//  3. Project config (.notesearch.yaml in dir)
//  4. Environment variables (NOTESEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges the first of .notesearch.yaml, .notesearch.yml or
// .notesearch.toml found in dir.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigFile, projectConfigFileAlt, projectConfigFileTOML} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := parseFile(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

// parseFile decodes YAML, or TOML for a .toml file.
func parseFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	unmarshal := yaml.Unmarshal
	if filepath.Ext(path) == ".toml" {
		unmarshal = toml.Unmarshal
	}
	if err := unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.UserDir != "" {
		c.Index.UserDir = expandHome(other.Index.UserDir)
	}
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.Analyzer != "" {
		c.Index.Analyzer = other.Index.Analyzer
	}
	if len(other.Index.KeywordFields) > 0 {
		c.Index.KeywordFields = other.Index.KeywordFields
	}
	if other.Index.Permits != 0 {
		c.Index.Permits = other.Index.Permits
	}
	if other.Index.AcquireTimeout != "" {
		c.Index.AcquireTimeout = other.Index.AcquireTimeout
	}

	if other.Watch.DebounceWindow != "" {
		c.Watch.DebounceWindow = other.Watch.DebounceWindow
	}
	if len(other.Watch.Ignore) > 0 {
		c.Watch.Ignore = other.Watch.Ignore
	}
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// applyEnvOverrides applies NOTESEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("NOTESEARCH_USER_DIR"); v != "" {
		c.Index.UserDir = expandHome(v)
	}
	if v := os.Getenv("NOTESEARCH_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("NOTESEARCH_ANALYZER"); v != "" {
		c.Index.Analyzer = v
	}
	if v := os.Getenv("NOTESEARCH_PERMITS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("NOTESEARCH_PERMITS must be an integer, got %q", v)
		}
		c.Index.Permits = n
	}
	if v := os.Getenv("NOTESEARCH_ACQUIRE_TIMEOUT"); v != "" {
		c.Index.AcquireTimeout = v
	}
	if v := os.Getenv("NOTESEARCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := store.ParseBackend(c.Index.Backend); err != nil {
		return fmt.Errorf("index.backend: %w", err)
	}
	if err := c.Analysis().Validate(); err != nil {
		return fmt.Errorf("index.analyzer: %w", err)
	}
	if c.Index.Permits < 1 {
		return fmt.Errorf("index.permits must be at least 1, got %d", c.Index.Permits)
	}
	if _, err := c.AcquireTimeout(); err != nil {
		return err
	}
	if _, err := c.DebounceWindow(); err != nil {
		return err
	}
	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watch.extensions: %q must start with a dot", ext)
		}
	}
	for _, p := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("watch.ignore: invalid pattern %q", p)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	return nil
}

// Analysis returns the store analysis settings.
func (c *Config) Analysis() store.AnalysisConfig {
	return store.AnalysisConfig{
		Analyzer:      strings.ToLower(c.Index.Analyzer),
		KeywordFields: c.Index.KeywordFields,
	}
}

// AcquireTimeout parses index.acquire_timeout. Zero means wait forever.
func (c *Config) AcquireTimeout() (time.Duration, error) {
	if c.Index.AcquireTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Index.AcquireTimeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("index.acquire_timeout must be a non-negative duration, got %q", c.Index.AcquireTimeout)
	}
	return d, nil
}

// DebounceWindow parses watch.debounce_window.
func (c *Config) DebounceWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.Watch.DebounceWindow)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("watch.debounce_window must be a positive duration, got %q", c.Watch.DebounceWindow)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
