package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/extdev/internal/target"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestRootCmd creates a cobra.Command with the same persistent flags as the
// real root command so that Load can bind them during tests.
func newTestRootCmd() *cobra.Command {
	cmd := &cobra.Command{}
	pf := cmd.PersistentFlags()
	pf.String("config", "", "")
	pf.String("log-level", "info", "")
	pf.String("log-format", "text", "")
	pf.Bool("no-color", false, "")
	pf.BoolP("quiet", "q", false, "")

	return cmd
}

// writeTempConfig writes a YAML string to a temporary file and returns the path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

// ---------------------------------------------------------------------------
// Default
// ---------------------------------------------------------------------------

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.False(t, cfg.NoColor)
	assert.False(t, cfg.Quiet)
	assert.Equal(t, "chrome", cfg.Browser)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "dist", cfg.OutputDir)
	assert.Equal(t, 200*time.Millisecond, cfg.Debounce)
	assert.True(t, cfg.Open)
	assert.Equal(t, 3, cfg.MaxRestarts)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_ValidValues(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		cfg := Default()
		cfg.LogLevel = lvl
		assert.NoError(t, cfg.Validate(), "level=%s", lvl)
	}

	for _, fmt := range []string{"text", "json"} {
		cfg := Default()
		cfg.LogFormat = fmt
		assert.NoError(t, cfg.Validate(), "format=%s", fmt)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "invalid log level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	assert.ErrorContains(t, cfg.Validate(), "invalid log format")
}

func TestValidate_SessionValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"all browsers", func(c *Config) { c.Browser = "all" }, ""},
		{"browser list", func(c *Config) { c.Browser = "chrome,edge" }, ""},
		{"unknown browser", func(c *Config) { c.Browser = "safari" }, "unknown browser"},
		{"port zero disables reload", func(c *Config) { c.Port = 0 }, ""},
		{"negative port", func(c *Config) { c.Port = -1 }, "invalid port"},
		{"port too large", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"last port fits", func(c *Config) { c.Browser = "all"; c.Port = 65533 }, ""},
		{"port range overflows", func(c *Config) { c.Browser = "all"; c.Port = 65534 }, "3 browsers need ports up to 65536"},
		{"single browser at top port", func(c *Config) { c.Port = 65535 }, ""},
		{"negative debounce", func(c *Config) { c.Debounce = -time.Second }, "invalid debounce"},
		{"negative max restarts", func(c *Config) { c.MaxRestarts = -1 }, "invalid max-restarts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestVendors(t *testing.T) {
	cfg := Default()
	cfg.Browser = "edge, all"

	vendors, err := cfg.Vendors()
	require.NoError(t, err)
	assert.Equal(t, []target.Vendor{target.Edge, target.Chrome, target.Firefox}, vendors)
}

func TestBinaryFor(t *testing.T) {
	cfg := &Config{ChromiumBinary: "/usr/bin/chromium", GeckoBinary: "/usr/bin/firefox"}

	assert.Equal(t, "/usr/bin/chromium", cfg.BinaryFor(target.Chrome))
	assert.Equal(t, "/usr/bin/chromium", cfg.BinaryFor(target.Edge))
	assert.Equal(t, "/usr/bin/firefox", cfg.BinaryFor(target.Firefox))
}

// ---------------------------------------------------------------------------
// EffectiveLogLevel
// ---------------------------------------------------------------------------

func TestEffectiveLogLevel_Normal(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	assert.Equal(t, "debug", cfg.EffectiveLogLevel())
}

func TestEffectiveLogLevel_QuietOverride(t *testing.T) {
	cfg := &Config{LogLevel: "debug", Quiet: true}
	assert.Equal(t, "error", cfg.EffectiveLogLevel())
}

// ---------------------------------------------------------------------------
// Load: defaults only
// ---------------------------------------------------------------------------

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.False(t, cfg.NoColor)
	assert.False(t, cfg.Quiet)
}

// ---------------------------------------------------------------------------
// Load: environment variables
// ---------------------------------------------------------------------------

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("EXTDEV_LOG_LEVEL", "debug")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvBooleans(t *testing.T) {
	t.Setenv("EXTDEV_NO_COLOR", "true")
	t.Setenv("EXTDEV_QUIET", "true")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.Quiet)
}

// ---------------------------------------------------------------------------
// Load: config file
// ---------------------------------------------------------------------------

func TestLoad_ConfigFile(t *testing.T) {
	p := writeTempConfig(t, "log-level: warn\nlog-format: json\n")

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(nil, "/tmp/nonexistent-extdev-cfg-12345.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_MalformedFile(t *testing.T) {
	p := writeTempConfig(t, ": invalid yaml :")

	_, err := Load(nil, p)
	require.Error(t, err)
}

func TestLoad_MissingAutoDiscoverFile(t *testing.T) {
	// When no explicit file is given and auto-discover finds nothing, Load
	// should succeed with defaults.
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
}

// ---------------------------------------------------------------------------
// Load: flag precedence
// ---------------------------------------------------------------------------

func TestLoad_FlagOverridesDefault(t *testing.T) {
	cmd := newTestRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "error"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("EXTDEV_LOG_LEVEL", "debug")

	cmd := newTestRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "error"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("EXTDEV_LOG_LEVEL", "debug")
	p := writeTempConfig(t, "log-level: warn\n")

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FlagOverridesAll(t *testing.T) {
	t.Setenv("EXTDEV_LOG_LEVEL", "debug")
	p := writeTempConfig(t, "log-level: warn\n")

	cmd := newTestRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "error"))

	cfg, err := Load(cmd, p)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_SessionKeysFromFile(t *testing.T) {
	p := writeTempConfig(t, `browser: all
port: 9000
output-dir: build
debounce: 1s
open: false
build-command: npm run build
ignore:
  - "*.map"
  - coverage
browsers:
  chrome:
    flags: ["--lang=de"]
`)

	cfg, err := Load(nil, p)
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.Browser)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "build", cfg.OutputDir)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.False(t, cfg.Open)
	assert.Equal(t, "npm run build", cfg.BuildCommand)
	assert.Equal(t, []string{"*.map", "coverage"}, cfg.Ignore)
	assert.Equal(t, p, cfg.ConfigFile)
}

func TestLoad_CommandFlagOverridesEnvAndFile(t *testing.T) {
	t.Setenv("EXTDEV_PORT", "9100")
	p := writeTempConfig(t, `port: 9000
browser: edge
`)

	root := newTestRootCmd()
	sub := &cobra.Command{Use: "dev"}
	sub.Flags().Int("port", DefaultPort, "")
	sub.Flags().String("browser", "chrome", "")
	root.AddCommand(sub)

	require.NoError(t, sub.Flags().Set("port", "9200"))

	cfg, err := Load(sub, p)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, "edge", cfg.Browser, "unset flag falls back to the file")
}

func TestLoad_EnvSessionValues(t *testing.T) {
	t.Setenv("EXTDEV_BROWSER", "chrome,edge")
	t.Setenv("EXTDEV_DEBOUNCE", "750ms")
	t.Setenv("EXTDEV_MAX_RESTARTS", "5")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "chrome,edge", cfg.Browser)
	assert.Equal(t, 750*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 5, cfg.MaxRestarts)
}

// ---------------------------------------------------------------------------
// Load: validation on loaded values
// ---------------------------------------------------------------------------

func TestLoad_InvalidLogLevelFromEnv(t *testing.T) {
	t.Setenv("EXTDEV_LOG_LEVEL", "verbose")

	_, err := Load(nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoad_InvalidBrowserFromEnv(t *testing.T) {
	t.Setenv("EXTDEV_BROWSER", "safari")

	_, err := Load(nil, "")
	assert.ErrorContains(t, err, "unknown browser")
}

func TestLoad_InvalidLogFormatFromFile(t *testing.T) {
	p := writeTempConfig(t, "log-format: xml\n")

	_, err := Load(nil, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

func TestContext_RoundTrip(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	ctx := NewContext(context.Background(), cfg)
	got := FromContext(ctx)
	assert.Equal(t, cfg, got)
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	got := FromContext(context.Background())
	assert.Equal(t, Default(), got)
}
