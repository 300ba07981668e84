package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/extdev/internal/browser"
	"github.com/hupe1980/extdev/internal/bundle"
	"github.com/hupe1980/extdev/internal/config"
	"github.com/hupe1980/extdev/internal/devloop"
	"github.com/hupe1980/extdev/internal/logging"
	"github.com/hupe1980/extdev/internal/target"
	"github.com/hupe1980/extdev/internal/ui"
)

// browserStableAfter is the uptime after which a browser exit no longer
// counts towards the relaunch budget.
const browserStableAfter = 30 * time.Second

// session is the resolved configuration of one command invocation.
type session struct {
	cfg      *config.Config
	targets  []target.BuildTarget
	browsers *config.BrowserConfig
	printer  *ui.Printer
	logger   *slog.Logger
}

// newSession resolves the project and target browsers of cmd. With reload
// set, every target gets its own reload channel port.
func newSession(cmd *cobra.Command, args []string, reload bool) (*session, error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	vendors, err := cfg.Vendors()
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	project := "."
	if len(args) > 0 {
		project = args[0]
	}

	if _, err := os.Stat(filepath.Join(project, target.ManifestFileName)); err != nil {
		return nil, &ExitError{Code: 2, Err: fmt.Errorf("%s is not an extension project: %w", project, err)}
	}

	opts := target.Options{ProjectPath: project, OutputDir: cfg.OutputDir}
	if reload {
		opts.BasePort = cfg.Port
	}

	targets, err := target.New(vendors, opts)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	browsers, err := config.LoadBrowserConfig(cfg.ConfigFile)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	return &session{
		cfg:      cfg,
		targets:  targets,
		browsers: browsers,
		printer:  ui.New(cmd.ErrOrStderr(), ui.Options{NoColor: cfg.NoColor, Quiet: cfg.Quiet}),
		logger:   logging.FromContext(ctx),
	}, nil
}

// pipeline creates the static bundler of t.
func (s *session) pipeline(t target.BuildTarget) (bundle.Pipeline, error) {
	b, err := bundle.NewStaticBundler(bundle.Options{
		Target:       t,
		BuildCommand: s.cfg.BuildCommand,
		Ignore:       s.cfg.Ignore,
		Debounce:     s.cfg.Debounce,
		Logger:       s.logger,
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// launchOptions merges the per-browser overrides of the config file over
// the global browser settings.
func (s *session) launchOptions(v target.Vendor) browser.LaunchOptions {
	override := s.browsers.For(v)

	opts := browser.LaunchOptions{
		Binary:     s.cfg.BinaryFor(v),
		ProfileDir: s.cfg.Profile,
		Flags:      override.Flags,
	}

	if override.Binary != "" {
		opts.Binary = override.Binary
	}

	if override.Profile != "" {
		opts.ProfileDir = override.Profile
	}

	return opts
}

func (s *session) supervisor() *browser.Supervisor {
	opts := browser.DefaultSupervisorOptions()
	opts.MaxRestarts = s.cfg.MaxRestarts
	opts.StableAfter = browserStableAfter
	opts.Logger = s.logger

	return browser.NewSupervisor(opts)
}

// orchestrator wires the devloop collaborators. withBrowser enables browser
// launching; packager may be nil.
func (s *session) orchestrator(withBrowser bool, packager devloop.Packager) (*devloop.Orchestrator, error) {
	opts := devloop.Options{
		Pipelines:     s.pipeline,
		LaunchOptions: s.launchOptions,
		Packager:      packager,
		Reporter:      s.printer,
		Logger:        s.logger,
		OnState: func(v target.Vendor, st devloop.State) {
			s.logger.Debug("build state", slog.String(logging.VendorKey, v.String()), slog.String("state", st.String()))
		},
	}

	if withBrowser {
		opts.Browser = s.supervisor()
	}

	return devloop.New(opts)
}

// run fans fn out over the session's targets. Any target error fails the
// command with exit code 1.
func (s *session) run(ctx context.Context, fn func(ctx context.Context, t target.BuildTarget) error) error {
	if err := devloop.Run(ctx, s.targets, fn); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}
