// Package target models the per-vendor build targets of a development
// session. A BuildTarget is one vendor's independent build, reload channel
// and browser session triple; targets never share mutable state.
package target

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Vendor identifies a target browser.
type Vendor string

// Known vendors.
const (
	Chrome  Vendor = "chrome"
	Edge    Vendor = "edge"
	Firefox Vendor = "firefox"
)

// All is the selector value that fans out to every known vendor.
const All = "all"

// Known returns the supported vendor tags in their canonical order.
func Known() []Vendor {
	return []Vendor{Chrome, Edge, Firefox}
}

// String implements fmt.Stringer.
func (v Vendor) String() string { return string(v) }

// IsKnown reports whether v is one of the known vendors.
func (v Vendor) IsKnown() bool {
	return slices.Contains(Known(), v)
}

// ParseSelector expands a vendor selector into the ordered, de-duplicated
// list of vendors. The selector is a comma-separated list of vendor tags;
// "all" expands to every known vendor. An empty selector means chrome.
func ParseSelector(selector string) ([]Vendor, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return []Vendor{Chrome}, nil
	}

	var vendors []Vendor

	for _, part := range strings.Split(selector, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}

		if name == All {
			for _, v := range Known() {
				if !slices.Contains(vendors, v) {
					vendors = append(vendors, v)
				}
			}

			continue
		}

		v := Vendor(name)
		if !v.IsKnown() {
			return nil, fmt.Errorf("unknown browser %q: must be one of chrome, edge, firefox, all", name)
		}

		if !slices.Contains(vendors, v) {
			vendors = append(vendors, v)
		}
	}

	if len(vendors) == 0 {
		return nil, fmt.Errorf("empty browser selector %q", selector)
	}

	return vendors, nil
}

// BuildTarget is one vendor's build, reload channel, and browser session.
type BuildTarget struct {
	Vendor       Vendor
	ProjectPath  string
	ManifestPath string
	OutputPath   string

	// Port is the reload channel port. Zero means no channel.
	Port int
}

// ManifestFileName is the extension descriptor file name.
const ManifestFileName = "manifest.json"

// OutputPath resolves the build output directory for vendor. A relative
// outputDir is taken relative to projectPath.
func OutputPath(projectPath, outputDir string, vendor Vendor) string {
	if outputDir == "" {
		outputDir = "dist"
	}

	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(projectPath, outputDir)
	}

	return filepath.Join(outputDir, vendor.String())
}

// Options configures how targets are derived from a vendor list.
type Options struct {
	ProjectPath string
	OutputDir   string

	// BasePort is the port of the first vendor; vendor i gets BasePort+i.
	// Zero disables reload channels.
	BasePort int
}

// New builds one BuildTarget per vendor. Each target gets its own port so
// that concurrent sessions never contend for a listener.
func New(vendors []Vendor, opts Options) ([]BuildTarget, error) {
	project, err := filepath.Abs(opts.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("resolving project path %q: %w", opts.ProjectPath, err)
	}

	targets := make([]BuildTarget, 0, len(vendors))

	for i, v := range vendors {
		t := BuildTarget{
			Vendor:       v,
			ProjectPath:  project,
			ManifestPath: filepath.Join(project, ManifestFileName),
			OutputPath:   OutputPath(project, opts.OutputDir, v),
		}

		if opts.BasePort > 0 {
			t.Port = opts.BasePort + i
		}

		targets = append(targets, t)
	}

	return targets, nil
}
