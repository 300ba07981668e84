package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/extdev/internal/target"
)

// BrowserOverride holds per-vendor launch settings from the config file.
type BrowserOverride struct {
	// Binary overrides the browser executable for this vendor.
	Binary string `json:"binary,omitempty"`

	// Flags are extra command line flags, e.g. "--auto-open-devtools-for-tabs".
	Flags []string `json:"flags,omitempty"`

	// Profile overrides the user data directory for this vendor.
	Profile string `json:"profile,omitempty"`
}

// BrowserConfig holds the browsers section of the config file:
//
//	browsers:
//	  chrome:
//	    flags: ["--auto-open-devtools-for-tabs"]
//	  edge:
//	    binary: /opt/microsoft/msedge/msedge
type BrowserConfig struct {
	Browsers map[string]BrowserOverride `json:"browsers,omitempty"`
}

// ParseBrowserConfig parses the browsers section from raw config file bytes.
func ParseBrowserConfig(data []byte) (*BrowserConfig, error) {
	var raw struct {
		Browsers map[string]BrowserOverride `json:"browsers,omitempty"`
	}

	if err := sigsyaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing browser config: %w", err)
	}

	cfg := &BrowserConfig{Browsers: raw.Browsers}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadBrowserConfig reads the browsers section from the config file at
// path. An empty path yields an empty config.
func LoadBrowserConfig(path string) (*BrowserConfig, error) {
	if path == "" {
		return &BrowserConfig{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	return ParseBrowserConfig(data)
}

// Validate checks that every section names a known vendor and carries no
// empty flags.
func (c *BrowserConfig) Validate() error {
	names := make([]string, 0, len(c.Browsers))
	for name := range c.Browsers {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if !target.Vendor(name).IsKnown() {
			return fmt.Errorf("browsers.%s: unknown browser (must be one of chrome, edge, firefox)", name)
		}

		for i, f := range c.Browsers[name].Flags {
			if strings.TrimLeft(strings.TrimSpace(f), "-") == "" {
				return fmt.Errorf("browsers.%s.flags[%d]: flag must not be empty", name, i)
			}
		}
	}

	return nil
}

// For returns the override for v, or the zero value.
func (c *BrowserConfig) For(v target.Vendor) BrowserOverride {
	if c == nil {
		return BrowserOverride{}
	}

	return c.Browsers[v.String()]
}

// IsEmpty returns true if no vendor has overrides.
func (c *BrowserConfig) IsEmpty() bool {
	return c == nil || len(c.Browsers) == 0
}
