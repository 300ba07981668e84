// Package browser launches and supervises one browser process per vendor,
// bound to that vendor's unpacked extension output directory.
//
// Vendor support is a capability table: a vendor without an entry yields
// ErrUnsupportedVendor instead of a launch.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/extdev/internal/target"
)

var (
	// ErrUnsupportedVendor is returned for vendors absent from the table.
	ErrUnsupportedVendor = errors.New("unsupported browser vendor")

	// ErrBinaryNotFound is returned when no browser binary can be located.
	ErrBinaryNotFound = errors.New("browser binary not found")

	// ErrTooManyRestarts is reported when a session exhausts its relaunch budget.
	ErrTooManyRestarts = errors.New("browser exited too many times")
)

// LaunchError wraps a launch failure for one vendor.
type LaunchError struct {
	Vendor target.Vendor
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Vendor, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// LaunchOptions is the per-vendor launch contract.
type LaunchOptions struct {
	// Port is the reload channel port the extension connects to, if any.
	Port int

	// ExtensionPath is the unpacked extension directory to load.
	ExtensionPath string

	// AutoReload marks the output as carrying the injected reload client.
	AutoReload bool

	// Flags are extra command line flags, with or without leading dashes.
	Flags []string

	// Binary overrides the browser executable.
	Binary string

	// ProfileDir is the user data directory. Empty means a fresh
	// temporary profile that is removed when the process exits.
	ProfileDir string
}

// Process is a running browser.
type Process interface {
	PID() int
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	Kill()
}

// Launcher starts a browser process for one vendor family.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Process, error)
}

// Table maps vendors to their launch implementation.
type Table map[target.Vendor]Launcher

// DefaultTable returns the built-in capability table. Firefox has no entry:
// loading a temporary add-on needs the remote debugging protocol, which is
// not implemented.
func DefaultTable() Table {
	return Table{
		target.Chrome: NewChromiumLauncher(ChromeLookup),
		target.Edge:   NewChromiumLauncher(EdgeLookup),
	}
}

// Supports reports whether the table has a launcher for v.
func (t Table) Supports(v target.Vendor) bool {
	l, ok := t[v]
	return ok && l != nil
}
