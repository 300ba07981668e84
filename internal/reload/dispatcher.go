package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hupe1980/extdev/internal/manifest"
)

// Broadcaster delivers directives to connected reload clients.
type Broadcaster interface {
	Broadcast(d Directive)
}

// Dispatcher turns file-change notifications into reload directives and
// broadcasts them on the channel bound to the same build target.
type Dispatcher struct {
	manifestPath string
	channel      Broadcaster
	logger       *slog.Logger

	mu       sync.Mutex
	snapshot []byte // last manifest text seen, for diff diagnostics only
}

// NewDispatcher creates a dispatcher for the manifest at manifestPath.
// A nil channel makes the dispatcher classify without broadcasting.
func NewDispatcher(manifestPath string, channel Broadcaster, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		manifestPath: manifestPath,
		channel:      channel,
		logger:       logger,
	}

	if data, err := os.ReadFile(manifestPath); err == nil {
		d.snapshot = data
	}

	return d
}

// OnFileChanged re-classifies the manifest and returns the directive that
// applies to changedPath, if any. A produced directive is broadcast
// immediately. A manifest parse failure skips this cycle.
func (d *Dispatcher) OnFileChanged(changedPath string) (Directive, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	desc, err := manifest.Classify(d.manifestPath)
	if err != nil {
		var perr *manifest.ParseError
		if errors.As(err, &perr) {
			d.logger.Warn("skipping reload dispatch", slog.String("file", changedPath), slog.String("error", err.Error()))
		} else {
			d.logger.Error("classifying manifest", slog.String("error", err.Error()))
		}

		return Directive{}, false
	}

	directive, ok := Match(desc, d.manifestPath, changedPath)

	if ok && directive.Kind == ManifestChanged {
		d.logManifestDiff(desc.Raw)
	}

	d.snapshot = desc.Raw

	if !ok {
		d.logger.Debug("no reload directive", slog.String("file", changedPath))
		return Directive{}, false
	}

	d.logger.Info("reload directive",
		slog.String("directive", directive.Kind.String()),
		slog.String("file", directive.File),
	)

	if d.channel != nil {
		d.channel.Broadcast(directive)
	}

	return directive, true
}

// Match applies the dispatch precedence to changedPath: manifest file name,
// then locale membership, then the service worker script entry, then the
// declarative_net_request JSON entry. Relative paths are resolved against
// the manifest directory.
//
// Locale matching is loose substring containment. Script and JSON entries
// other than the reserved ones match but produce no directive.
func Match(desc *manifest.Descriptor, manifestPath, changedPath string) (Directive, bool) {
	if changedPath == "" {
		return Directive{}, false
	}

	changed := changedPath
	if !filepath.IsAbs(changed) {
		changed = filepath.Join(filepath.Dir(manifestPath), changed)
	}

	changed = filepath.Clean(changed)

	if filepath.Base(changed) == filepath.Base(manifestPath) {
		return Directive{Kind: ManifestChanged, File: changed}, true
	}

	for _, locale := range desc.Locales {
		if strings.Contains(locale, changed) {
			return Directive{Kind: LocalesChanged, File: changed}, true
		}
	}

	for _, entry := range desc.ScriptEntries() {
		if slices.Contains(desc.Scripts[entry], changed) && entry == manifest.ServiceWorkerEntry {
			return Directive{Kind: ServiceWorkerChanged, File: changed}, true
		}
	}

	for _, entry := range desc.JSONEntries() {
		if slices.Contains(desc.JSON[entry], changed) && entry == manifest.DeclarativeNetRequestEntry {
			return Directive{Kind: DeclarativeNetRequestChanged, File: changed}, true
		}
	}

	return Directive{}, false
}

func (d *Dispatcher) logManifestDiff(current []byte) {
	if d.snapshot == nil || !d.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(d.snapshot)),
		B:        difflib.SplitLines(string(current)),
		FromFile: "previous",
		ToFile:   "current",
		Context:  1,
	})
	if err != nil || diff == "" {
		return
	}

	d.logger.Debug("manifest changed", slog.String("diff", diff))
}
