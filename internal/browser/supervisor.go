package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/extdev/internal/logging"
	"github.com/hupe1980/extdev/internal/target"
)

// SupervisorOptions configures crash supervision.
type SupervisorOptions struct {
	Table Table

	Backoff BackoffConfig

	// MaxRestarts is the number of consecutive relaunches attempted before
	// the session gives up. Zero disables relaunching.
	MaxRestarts int

	// StableAfter is the uptime after which a run no longer counts as a
	// consecutive failure.
	StableAfter time.Duration

	Logger *slog.Logger
}

// DefaultSupervisorOptions returns the default supervision policy.
func DefaultSupervisorOptions() SupervisorOptions {
	return SupervisorOptions{
		Table:       DefaultTable(),
		Backoff:     DefaultBackoff(),
		MaxRestarts: 3,
		StableAfter: 30 * time.Second,
		Logger:      slog.Default(),
	}
}

// Supervisor owns the browser sessions it launches.
type Supervisor struct {
	opts SupervisorOptions
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.Table == nil {
		opts.Table = DefaultTable()
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Supervisor{opts: opts}
}

// Session is a supervised browser bound to one build target's output.
type Session struct {
	Vendor     target.Vendor
	Binary     string
	OutputPath string
	AutoReload bool

	mu       sync.Mutex
	proc     Process
	restarts int
	err      error
	done     chan struct{}
}

// PID returns the current process id, or 0 when no process is running.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return 0
	}

	return s.proc.PID()
}

// Restarts returns how many times the browser was relaunched.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.restarts
}

// Err returns the terminal supervision error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Done is closed when supervision ends, either by cancellation or by
// exhausting the relaunch budget.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setProcess(p Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.proc = p
}

// Launch starts the browser for t and supervises it until ctx is
// cancelled. The target's port is only filled in when opts.AutoReload is
// set. Vendors without a table entry return ErrUnsupportedVendor; launch
// failures are returned as *LaunchError.
func (s *Supervisor) Launch(ctx context.Context, t target.BuildTarget, opts LaunchOptions) (*Session, error) {
	launcher, ok := s.opts.Table[t.Vendor]
	if !ok || launcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVendor, t.Vendor)
	}

	if opts.ExtensionPath == "" {
		opts.ExtensionPath = t.OutputPath
	}

	if opts.AutoReload && opts.Port == 0 {
		opts.Port = t.Port
	}

	proc, err := launcher.Launch(ctx, opts)
	if err != nil {
		return nil, &LaunchError{Vendor: t.Vendor, Err: err}
	}

	sess := &Session{
		Vendor:     t.Vendor,
		Binary:     opts.Binary,
		OutputPath: opts.ExtensionPath,
		AutoReload: opts.AutoReload,
		proc:       proc,
		done:       make(chan struct{}),
	}

	logger := logging.ForVendor(s.opts.Logger, t.Vendor)
	logger.Info("browser launched", slog.Int("pid", proc.PID()), slog.String("extension", opts.ExtensionPath))

	go s.supervise(ctx, sess, launcher, opts, logger)

	return sess, nil
}

func (s *Supervisor) supervise(ctx context.Context, sess *Session, l Launcher, opts LaunchOptions, logger *slog.Logger) {
	defer close(sess.done)

	proc := sess.proc
	started := time.Now()
	failures := 0

	for {
		if proc != nil {
			select {
			case <-ctx.Done():
				proc.Kill()
				<-proc.Done()
				return
			case <-proc.Done():
			}

			if ctx.Err() != nil {
				return
			}

			if time.Since(started) >= s.opts.StableAfter {
				failures = 0
			}

			logger.Warn("browser exited", slog.Duration("uptime", time.Since(started).Round(time.Millisecond)))
		}

		failures++
		if failures > s.opts.MaxRestarts {
			sess.mu.Lock()
			sess.err = fmt.Errorf("%w (%d consecutive failures)", ErrTooManyRestarts, failures)
			sess.proc = nil
			sess.mu.Unlock()

			logger.Error("giving up on browser", slog.Int("failures", failures))

			return
		}

		delay := s.opts.Backoff.NextDelay(failures)
		logger.Info("relaunching browser", slog.Int("attempt", failures), slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		next, err := l.Launch(ctx, opts)
		if err != nil {
			logger.Warn("relaunch failed", slog.String("error", err.Error()))
			sess.setProcess(nil)
			proc = nil

			continue
		}

		proc = next
		started = time.Now()

		sess.mu.Lock()
		sess.proc = next
		sess.restarts++
		sess.mu.Unlock()
	}
}
