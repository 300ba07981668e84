package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/extdev/internal/logging"
	"github.com/hupe1980/extdev/internal/manifest"
	"github.com/hupe1980/extdev/internal/target"
)

// Options configures a StaticBundler for one build target.
type Options struct {
	Target target.BuildTarget

	// BuildCommand runs in the project directory before staging.
	BuildCommand string

	// Ignore adds patterns on top of DefaultIgnore.
	Ignore []string

	// Debounce is the watcher quiet period.
	Debounce time.Duration

	Logger *slog.Logger
}

// StaticBundler stages an extension project into its output directory.
// Development builds whose target has a reload port get the reload client
// injected.
type StaticBundler struct {
	opts       Options
	ignore     *Matcher
	outputRoot string
}

var _ Pipeline = (*StaticBundler)(nil)

// NewStaticBundler validates opts and creates the bundler.
func NewStaticBundler(opts Options) (*StaticBundler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatchOptions().Debounce
	}

	t := opts.Target
	if t.ProjectPath == "" || t.OutputPath == "" {
		return nil, errors.New("bundle: project and output paths are required")
	}

	outputRoot := filepath.Dir(t.OutputPath)
	if within(t.ProjectPath, outputRoot) {
		return nil, fmt.Errorf("output directory %s must not contain the project", outputRoot)
	}

	ignore, err := NewMatcher(append(append([]string(nil), DefaultIgnore...), opts.Ignore...))
	if err != nil {
		return nil, err
	}

	return &StaticBundler{opts: opts, ignore: ignore, outputRoot: outputRoot}, nil
}

// OutputPath returns the vendor output directory.
func (b *StaticBundler) OutputPath() string { return b.opts.Target.OutputPath }

// Build runs the build command, stages the project and checks that every
// file the manifest references was staged.
func (b *StaticBundler) Build(ctx context.Context, mode Mode) (*Result, error) {
	t := b.opts.Target
	logger := logging.ForVendor(b.opts.Logger, t.Vendor)

	if b.opts.BuildCommand != "" {
		var out bytes.Buffer

		cmd := Command{
			Line: b.opts.BuildCommand,
			Dir:  t.ProjectPath,
			Env:  TargetEnv(t.Vendor.String(), t.OutputPath, mode),
		}

		logger.Debug("running build command", slog.String("command", cmd.Line))

		if err := cmd.Run(ctx, &out); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return b.failed(fmt.Sprintf("%v\n%s", err, strings.TrimSpace(out.String()))), nil
		}
	}

	desc, err := manifest.Classify(t.ManifestPath)
	if err != nil {
		return b.failed(err.Error()), nil
	}

	if missing := b.missing(desc); len(missing) > 0 {
		return b.failed("missing files referenced by the manifest:\n  " + strings.Join(missing, "\n  ")), nil
	}

	if err := os.RemoveAll(t.OutputPath); err != nil {
		return nil, fmt.Errorf("cleaning output directory: %w", err)
	}

	n, err := b.stage()
	if err != nil {
		return nil, fmt.Errorf("staging %s: %w", t.OutputPath, err)
	}

	if mode == Development && t.Port > 0 {
		if err := InjectReloadClient(t.OutputPath, t.Port); err != nil {
			if !errors.Is(err, ErrBackgroundPage) {
				return nil, fmt.Errorf("injecting reload client: %w", err)
			}

			logger.Warn("reload client not injected", slog.String("reason", err.Error()))
		}
	}

	logger.Debug("staged", slog.Int("files", n), slog.String("mode", mode.String()))

	return &Result{Success: true, OutputPath: t.OutputPath}, nil
}

// Watch watches the project for changes, skipping the output root.
func (b *StaticBundler) Watch(ctx context.Context, fn func(paths []string)) error {
	return Watch(ctx, WatchOptions{
		Root:     b.opts.Target.ProjectPath,
		Skip:     []string{b.outputRoot},
		Ignore:   b.ignore,
		Debounce: b.opts.Debounce,
		Logger:   b.opts.Logger,
	}, fn)
}

func (b *StaticBundler) failed(diagnostics string) *Result {
	return &Result{Diagnostics: diagnostics, OutputPath: b.opts.Target.OutputPath}
}

// missing lists manifest references absent from the project, relative to
// the project directory.
func (b *StaticBundler) missing(desc *manifest.Descriptor) []string {
	var out []string

	for _, f := range desc.Files() {
		if _, err := os.Stat(f); err == nil {
			continue
		}

		rel, err := filepath.Rel(b.opts.Target.ProjectPath, f)
		if err != nil {
			rel = f
		}

		out = append(out, filepath.ToSlash(rel))
	}

	return out
}

// stage copies the project tree into the output directory and returns the
// number of files copied.
func (b *StaticBundler) stage() (int, error) {
	t := b.opts.Target
	f := &filter{root: t.ProjectPath, skip: []string{b.outputRoot}, ignore: b.ignore}
	count := 0

	err := filepath.WalkDir(t.ProjectPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if p == t.ProjectPath {
			return nil
		}

		if !f.allowed(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		rel, err := filepath.Rel(t.ProjectPath, p)
		if err != nil {
			return err
		}

		dst := filepath.Join(t.OutputPath, rel)

		if d.IsDir() {
			return os.MkdirAll(dst, 0o750)
		}

		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return nil //nolint:nilerr
		}

		if err := copyFile(p, dst, info.Mode().Perm()); err != nil {
			return err
		}

		count++

		return nil
	})

	return count, err
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src) //nolint:gosec
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

// within reports whether p equals dir or lies below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
