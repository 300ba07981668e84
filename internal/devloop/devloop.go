// Package devloop orchestrates the build pipeline, reload channel and
// browser supervisor of each build target.
//
// One-shot commands (build, start) treat a failed build as fatal. The dev
// loop reports failures and keeps watching; its reload channel lives for
// the whole session, so the first successful rebuild after a break
// dispatches on the same channel.
package devloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/extdev/internal/browser"
	"github.com/hupe1980/extdev/internal/bundle"
	"github.com/hupe1980/extdev/internal/manifest"
	"github.com/hupe1980/extdev/internal/target"
)

// State is the lifecycle state of one target's pipeline.
type State int

// Pipeline states.
const (
	Idle State = iota
	Building
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BuildError reports a failed build with its diagnostics.
type BuildError struct {
	Vendor      target.Vendor
	Diagnostics string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s build failed", e.Vendor)
}

// ErrNoOutput is returned by Preview when the target has not been built.
var ErrNoOutput = errors.New("no build output")

// PipelineFactory creates the build pipeline for a target.
type PipelineFactory func(t target.BuildTarget) (bundle.Pipeline, error)

// BrowserLauncher starts a supervised browser for a target.
type BrowserLauncher interface {
	Launch(ctx context.Context, t target.BuildTarget, opts browser.LaunchOptions) (*browser.Session, error)
}

// Reporter receives user-facing status messages.
type Reporter interface {
	Building(v target.Vendor, mode string)
	Ready(v target.Vendor, outputPath string, info *manifest.Info)
	Failed(v target.Vendor, diagnostics string)
	Packaged(v target.Vendor)
	Unsupported(v target.Vendor)
	Watching(v target.Vendor, port int)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Pipelines PipelineFactory

	// Browser launches browsers in dev and preview. Nil disables launching.
	Browser BrowserLauncher

	// LaunchOptions returns the per-vendor launch settings. Port,
	// extension path and auto-reload are filled in from the target.
	LaunchOptions func(v target.Vendor) browser.LaunchOptions

	// Packager runs after a successful build. Nil skips packaging.
	Packager Packager

	Reporter Reporter

	// OnState observes state transitions.
	OnState func(v target.Vendor, s State)

	Logger *slog.Logger
}

// Orchestrator drives the per-target commands.
type Orchestrator struct {
	opts Options

	mu       sync.Mutex
	trackers map[target.Vendor]*tracker
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Pipelines == nil {
		return nil, errors.New("devloop: a pipeline factory is required")
	}

	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}

	if opts.LaunchOptions == nil {
		opts.LaunchOptions = func(target.Vendor) browser.LaunchOptions { return browser.LaunchOptions{} }
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Orchestrator{opts: opts, trackers: make(map[target.Vendor]*tracker)}, nil
}

// Run calls fn once per target, concurrently. A failing target never
// cancels its siblings; the returned error joins every target's error.
func Run(ctx context.Context, targets []target.BuildTarget, fn func(ctx context.Context, t target.BuildTarget) error) error {
	var g errgroup.Group

	errs := make([]error, len(targets))

	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			errs[i] = fn(ctx, t)
			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

// Build compiles t for production, then packages it. A failed build
// returns a *BuildError and never reaches packaging.
func (o *Orchestrator) Build(ctx context.Context, t target.BuildTarget) error {
	res, err := o.build(ctx, o.track(t.Vendor), t, bundle.Production)
	if err != nil {
		return err
	}

	if o.opts.Packager != nil {
		if err := o.opts.Packager.Package(ctx, t, res.OutputPath); err != nil {
			return fmt.Errorf("packaging %s: %w", t.Vendor, err)
		}

		o.opts.Reporter.Packaged(t.Vendor)
	}

	o.ready(t, res)

	return nil
}

// Start compiles t for production without watching, reloading or a
// browser.
func (o *Orchestrator) Start(ctx context.Context, t target.BuildTarget) error {
	res, err := o.build(ctx, o.track(t.Vendor), t, bundle.Production)
	if err != nil {
		return err
	}

	o.ready(t, res)

	return nil
}

// Preview launches a browser on t's existing output without building.
// It blocks until ctx is cancelled or the browser session ends.
func (o *Orchestrator) Preview(ctx context.Context, t target.BuildTarget) error {
	if _, err := os.Stat(t.OutputPath); err != nil {
		return fmt.Errorf("%w at %s: run build first", ErrNoOutput, t.OutputPath)
	}

	if o.opts.Browser == nil {
		return nil
	}

	opts := o.opts.LaunchOptions(t.Vendor)
	opts.ExtensionPath = t.OutputPath
	opts.Port = 0
	opts.AutoReload = false

	sess, err := o.opts.Browser.Launch(ctx, t, opts)
	if err != nil {
		if errors.Is(err, browser.ErrUnsupportedVendor) {
			o.opts.Reporter.Unsupported(t.Vendor)
		}

		return err
	}

	o.ready(t, &bundle.Result{Success: true, OutputPath: t.OutputPath})

	select {
	case <-ctx.Done():
	case <-sess.Done():
	}

	<-sess.Done()

	return sess.Err()
}

// build runs one build and maps a failed result to a *BuildError.
func (o *Orchestrator) build(ctx context.Context, tr *tracker, t target.BuildTarget, mode bundle.Mode) (*bundle.Result, error) {
	p, err := o.opts.Pipelines(t)
	if err != nil {
		return nil, err
	}

	return o.compile(ctx, tr, p, t.Vendor, mode)
}

func (o *Orchestrator) compile(ctx context.Context, tr *tracker, p bundle.Pipeline, v target.Vendor, mode bundle.Mode) (*bundle.Result, error) {
	tr.set(Building)
	o.opts.Reporter.Building(v, mode.String())

	res, err := p.Build(ctx, mode)
	if err != nil {
		tr.set(Failed)
		return nil, fmt.Errorf("building %s: %w", v, err)
	}

	if !res.Success {
		tr.set(Failed)
		o.opts.Reporter.Failed(v, res.Diagnostics)

		return nil, &BuildError{Vendor: v, Diagnostics: res.Diagnostics}
	}

	tr.set(Succeeded)

	return res, nil
}

func (o *Orchestrator) ready(t target.BuildTarget, res *bundle.Result) {
	info, err := manifest.ReadInfo(t.ManifestPath)
	if err != nil {
		o.opts.Logger.Debug("reading manifest info", slog.String("error", err.Error()))
		info = nil
	}

	o.opts.Reporter.Ready(t.Vendor, res.OutputPath, info)
}

// State reports the latest pipeline state of v. Vendors that never ran a
// command are Idle.
func (o *Orchestrator) State(v target.Vendor) State {
	o.mu.Lock()
	tr, ok := o.trackers[v]
	o.mu.Unlock()

	if !ok {
		return Idle
	}

	return tr.get()
}

func (o *Orchestrator) track(v target.Vendor) *tracker {
	tr := &tracker{vendor: v, state: Idle, observe: o.opts.OnState}

	o.mu.Lock()
	o.trackers[v] = tr
	o.mu.Unlock()

	return tr
}

// tracker holds one target's state.
type tracker struct {
	mu      sync.Mutex
	vendor  target.Vendor
	state   State
	observe func(v target.Vendor, s State)
}

func (t *tracker) set(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()

	if t.observe != nil {
		t.observe(t.vendor, s)
	}
}

func (t *tracker) get() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

type nopReporter struct{}

func (nopReporter) Building(target.Vendor, string)              {}
func (nopReporter) Ready(target.Vendor, string, *manifest.Info) {}
func (nopReporter) Failed(target.Vendor, string)                {}
func (nopReporter) Packaged(target.Vendor)                      {}
func (nopReporter) Unsupported(target.Vendor)                   {}
func (nopReporter) Watching(target.Vendor, int)                 {}
