package devloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hupe1980/extdev/internal/browser"
	"github.com/hupe1980/extdev/internal/bundle"
	"github.com/hupe1980/extdev/internal/logging"
	"github.com/hupe1980/extdev/internal/reload"
	"github.com/hupe1980/extdev/internal/target"
)

// Dev runs the watch-mode loop for t until ctx is cancelled.
//
// Every batch of changed paths triggers a development rebuild. After a
// successful rebuild each path is dispatched, in notification order, to
// the target's reload channel. The browser is launched after the first
// successful build. A browser session that exhausts its relaunch budget
// ends the loop with that error.
func (o *Orchestrator) Dev(ctx context.Context, t target.BuildTarget) error {
	logger := logging.ForVendor(o.opts.Logger, t.Vendor)

	p, err := o.opts.Pipelines(t)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var broadcaster reload.Broadcaster

	if t.Port > 0 {
		channel := reload.NewChannel(reload.ChannelOptions{Port: t.Port, Logger: logger})
		if err := channel.Start(ctx); err != nil {
			return err
		}
		defer channel.Close()

		broadcaster = channel
	}

	dispatcher := reload.NewDispatcher(t.ManifestPath, broadcaster, logger)
	tr := o.track(t.Vendor)

	var launch sync.Once

	rebuild := func(paths []string) {
		res, err := o.compile(ctx, tr, p, t.Vendor, bundle.Development)
		if err != nil {
			var be *BuildError
			if !errors.As(err, &be) && ctx.Err() == nil {
				o.opts.Reporter.Failed(t.Vendor, err.Error())
			}

			return
		}

		o.ready(t, res)

		launch.Do(func() { o.launch(ctx, stop, t, logger) })

		for _, path := range paths {
			dispatcher.OnFileChanged(path)
		}
	}

	rebuild(nil)

	o.opts.Reporter.Watching(t.Vendor, t.Port)

	if err := p.Watch(ctx, rebuild); err != nil {
		return err
	}

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}

	return nil
}

// launch starts the supervised browser for t. Launch failures are logged
// and leave the watch loop running.
func (o *Orchestrator) launch(ctx context.Context, stop context.CancelCauseFunc, t target.BuildTarget, logger *slog.Logger) {
	if o.opts.Browser == nil {
		return
	}

	opts := o.opts.LaunchOptions(t.Vendor)
	opts.ExtensionPath = t.OutputPath
	opts.Port = t.Port
	opts.AutoReload = t.Port > 0

	sess, err := o.opts.Browser.Launch(ctx, t, opts)
	if err != nil {
		if errors.Is(err, browser.ErrUnsupportedVendor) {
			o.opts.Reporter.Unsupported(t.Vendor)
			return
		}

		logger.Error("browser launch failed", slog.String("error", err.Error()))

		return
	}

	go func() {
		<-sess.Done()

		if err := sess.Err(); err != nil {
			logger.Error("browser supervision ended", slog.String("error", err.Error()))
			stop(err)
		}
	}()
}
