package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// BinaryLookup locates a browser executable on the host.
type BinaryLookup func() (string, bool)

// ChromeLookup finds a Chrome or Chromium installation.
func ChromeLookup() (string, bool) {
	return launcher.LookPath()
}

// EdgeLookup finds a Microsoft Edge installation.
func EdgeLookup() (string, bool) {
	candidates := map[string][]string{
		"darwin":  {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		"linux":   {"microsoft-edge", "microsoft-edge-stable", "microsoft-edge-beta", "microsoft-edge-dev"},
		"windows": {`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`, `C:\Program Files\Microsoft\Edge\Application\msedge.exe`, "msedge"},
	}

	for _, c := range candidates[runtime.GOOS] {
		if p, err := exec.LookPath(c); err == nil {
			return p, true
		}
	}

	return "", false
}

// ChromiumLauncher launches Chromium-family browsers with an unpacked
// extension loaded. Command line defaults come from the rod launcher,
// minus its remote debugging and automation switches.
type ChromiumLauncher struct {
	lookup BinaryLookup
	stdout io.Writer
	stderr io.Writer
}

// NewChromiumLauncher creates a launcher that uses lookup when no binary
// override is given.
func NewChromiumLauncher(lookup BinaryLookup) *ChromiumLauncher {
	return &ChromiumLauncher{lookup: lookup, stdout: io.Discard, stderr: io.Discard}
}

// Args returns the command line for opts, excluding the binary.
func (c *ChromiumLauncher) Args(opts LaunchOptions, profileDir string) ([]string, error) {
	ext, err := filepath.Abs(opts.ExtensionPath)
	if err != nil {
		return nil, fmt.Errorf("resolving extension path: %w", err)
	}

	l := launcher.New().
		Headless(false).
		UserDataDir(profileDir).
		Delete("no-startup-window").
		Delete("enable-automation").
		Delete("remote-debugging-port").
		Delete("disable-popup-blocking").
		Set("load-extension", ext).
		Set("disable-extensions-except", ext)

	for _, raw := range opts.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}

		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	return l.FormatArgs(), nil
}

// Launch starts the browser process.
func (c *ChromiumLauncher) Launch(ctx context.Context, opts LaunchOptions) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bin := opts.Binary
	if bin == "" {
		found, ok := c.lookup()
		if !ok {
			return nil, ErrBinaryNotFound
		}

		bin = found
	}

	if _, err := os.Stat(opts.ExtensionPath); err != nil {
		return nil, fmt.Errorf("extension output: %w", err)
	}

	profile := opts.ProfileDir

	var cleanup func()

	if profile == "" {
		tmp, err := os.MkdirTemp("", "extdev-profile-")
		if err != nil {
			return nil, fmt.Errorf("creating profile directory: %w", err)
		}

		profile = tmp
		cleanup = func() { _ = os.RemoveAll(tmp) }
	}

	args, err := c.Args(opts, profile)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}

		return nil, err
	}

	return startProcess(bin, args, c.stdout, c.stderr, cleanup)
}

// execProcess is a Process backed by os/exec.
type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func startProcess(bin string, args []string, stdout, stderr io.Writer, cleanup func()) (*execProcess, error) {
	cmd := exec.Command(bin, args...) //nolint:gosec
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if cleanup != nil {
			cleanup()
		}

		return nil, fmt.Errorf("starting %s: %w", bin, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}

	go func() {
		_ = cmd.Wait()

		if cleanup != nil {
			cleanup()
		}

		close(p.done)
	}()

	return p, nil
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Kill() { _ = p.cmd.Process.Kill() }
