// Package config provides configuration management for extdev.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (EXTDEV_ prefix)
//  3. Config file (.extdev.yaml)
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/extdev/internal/target"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Session defaults.
const (
	DefaultPort        = 8000
	DefaultOutputDir   = "dist"
	DefaultDebounce    = 200 * time.Millisecond
	DefaultMaxRestarts = 3
)

// Config represents the global configuration for extdev.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Browser is the vendor selector: a comma-separated list of chrome,
	// edge, firefox, or all.
	Browser string `mapstructure:"browser" json:"browser"`

	// Port is the reload channel port of the first vendor. Vendor i of a
	// multi-browser session uses Port+i.
	Port int `mapstructure:"port" json:"port"`

	// OutputDir is the build output root. Each vendor builds into its own
	// subdirectory.
	OutputDir string `mapstructure:"output-dir" json:"outputDir"`

	// Debounce is the quiet period before a batch of changes is rebuilt.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`

	// Profile is the browser user data directory. Empty means a fresh
	// temporary profile per launch.
	Profile string `mapstructure:"profile" json:"profile,omitempty"`

	// ChromiumBinary overrides the Chrome and Edge executable.
	ChromiumBinary string `mapstructure:"chromium-binary" json:"chromiumBinary,omitempty"`

	// GeckoBinary overrides the Firefox executable.
	GeckoBinary string `mapstructure:"gecko-binary" json:"geckoBinary,omitempty"`

	// Open launches a browser during dev.
	Open bool `mapstructure:"open" json:"open"`

	// BuildCommand runs before every build.
	BuildCommand string `mapstructure:"build-command" json:"buildCommand,omitempty"`

	// PackageCommand runs after a successful build command.
	PackageCommand string `mapstructure:"package-command" json:"packageCommand,omitempty"`

	// Ignore lists extra patterns excluded from staging and watching.
	Ignore []string `mapstructure:"ignore" json:"ignore,omitempty"`

	// MaxRestarts bounds consecutive browser relaunches.
	MaxRestarts int `mapstructure:"max-restarts" json:"maxRestarts"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), never read from config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:    LogLevelInfo,
		LogFormat:   LogFormatText,
		NoColor:     false,
		Quiet:       false,
		Browser:     string(target.Chrome),
		Port:        DefaultPort,
		OutputDir:   DefaultOutputDir,
		Debounce:    DefaultDebounce,
		Open:        true,
		MaxRestarts: DefaultMaxRestarts,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	vendors, err := c.Vendors()
	if err != nil {
		return err
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", c.Port)
	}

	// Browser i listens on Port+i.
	if last := c.Port + len(vendors) - 1; c.Port > 0 && last > 65535 {
		return fmt.Errorf("invalid port %d: %d browsers need ports up to %d", c.Port, len(vendors), last)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	if c.MaxRestarts < 0 {
		return fmt.Errorf("invalid max-restarts %d: must not be negative", c.MaxRestarts)
	}

	return nil
}

// Vendors parses the browser selector.
func (c *Config) Vendors() ([]target.Vendor, error) {
	return target.ParseSelector(c.Browser)
}

// BinaryFor returns the configured executable override for v.
func (c *Config) BinaryFor(v target.Vendor) string {
	if v == target.Firefox {
		return c.GeckoBinary
	}

	return c.ChromiumBinary
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", LogLevelInfo)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)
	v.SetDefault("browser", string(target.Chrome))
	v.SetDefault("port", DefaultPort)
	v.SetDefault("output-dir", DefaultOutputDir)
	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("profile", "")
	v.SetDefault("chromium-binary", "")
	v.SetDefault("gecko-binary", "")
	v.SetDefault("open", true)
	v.SetDefault("build-command", "")
	v.SetDefault("package-command", "")
	v.SetDefault("ignore", []string{})
	v.SetDefault("max-restarts", DefaultMaxRestarts)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("EXTDEV")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".extdev")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "extdev"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
