package bundle

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/extdev/internal/reload"
	"github.com/hupe1980/extdev/internal/target"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const mv3Manifest = `{
  "manifest_version": 3,
  "name": "demo",
  "version": "1.0.0",
  "background": {"service_worker": "background.js"},
  "content_scripts": [{"matches": ["<all_urls>"], "js": ["content.js"]}]
}`

func newProject(t *testing.T, manifestJSON string) string {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifest.json"), manifestJSON)
	writeFile(t, filepath.Join(dir, "background.js"), "// bg")
	writeFile(t, filepath.Join(dir, "content.js"), "// content")

	return dir
}

func newBundler(t *testing.T, project string, port int, buildCommand string) *StaticBundler {
	t.Helper()

	targets, err := target.New([]target.Vendor{target.Chrome}, target.Options{ProjectPath: project, BasePort: port})
	require.NoError(t, err)

	b, err := NewStaticBundler(Options{
		Target:       targets[0],
		BuildCommand: buildCommand,
		Debounce:     50 * time.Millisecond,
		Logger:       discardLogger(),
	})
	require.NoError(t, err)

	return b
}

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_BatchesDistinctPathsInOrder(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	d := NewDebouncer(50*time.Millisecond, func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, paths)
	})
	defer d.Stop()

	d.Trigger("b.js")
	d.Trigger("a.js")
	d.Trigger("b.js")
	d.Trigger("manifest.json")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b.js", "a.js", "manifest.json"}, batches[0])
}

func TestDebouncer_SeparateQuietPeriods(t *testing.T) {
	var calls atomic.Int32

	d := NewDebouncer(30*time.Millisecond, func(_ []string) { calls.Add(1) })
	defer d.Stop()

	d.Trigger("a.js")
	time.Sleep(120 * time.Millisecond)
	d.Trigger("a.js")
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, int32(2), calls.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(_ []string) { calls.Add(1) })

	d.Trigger("a.js")
	d.Stop()
	d.Trigger("b.js")

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_CallbacksDoNotOverlap(t *testing.T) {
	var running, overlaps atomic.Int32

	d := NewDebouncer(5*time.Millisecond, func(_ []string) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(40 * time.Millisecond)
		running.Add(-1)
	})
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger("a.js")
		time.Sleep(15 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), overlaps.Load())
}

// ---------------------------------------------------------------------------
// Ignore patterns
// ---------------------------------------------------------------------------

func TestMatcher(t *testing.T) {
	m, err := NewMatcher(append(append([]string(nil), DefaultIgnore...), "src/**/*.ts", "*.map"))
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"manifest.json", false},
		{"scripts/content.js", false},
		{"node_modules", true},
		{"packages/a/node_modules", true},
		{".git", true},
		{"icons/.DS_Store", true},
		{"file.swp", true},
		{"file~", true},
		{"#file#", true},
		{"src/lib/util.ts", true},
		{"lib/util.ts", false},
		{"bundle.js.map", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}
}

func TestMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher([]string{"[unclosed"})
	assert.ErrorContains(t, err, "invalid ignore pattern")
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("anything"))
	assert.Nil(t, m.Patterns())
}

// ---------------------------------------------------------------------------
// isRelevant / addRecursive
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"write", fsnotify.Write, true},
		{"create", fsnotify.Create, true},
		{"remove", fsnotify.Remove, true},
		{"rename", fsnotify.Rename, true},
		{"chmod only", fsnotify.Chmod, false},
		{"zero op", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRelevant(fsnotify.Event{Name: "a.js", Op: tt.op}))
		})
	}
}

func TestAddRecursive_SkipsOutputAndIgnored(t *testing.T) {
	dir := t.TempDir()

	for _, d := range []string{"scripts/lib", "dist/chrome", ".git/objects", "node_modules/pkg"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}

	m, err := NewMatcher(DefaultIgnore)
	require.NoError(t, err)

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	f := &filter{root: dir, skip: []string{filepath.Join(dir, "dist")}, ignore: m}
	require.NoError(t, addRecursive(watcher, dir, f))

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir])
	assert.True(t, watched[filepath.Join(dir, "scripts")])
	assert.True(t, watched[filepath.Join(dir, "scripts", "lib")])
	assert.False(t, watched[filepath.Join(dir, "dist")])
	assert.False(t, watched[filepath.Join(dir, "dist", "chrome")])
	assert.False(t, watched[filepath.Join(dir, ".git")])
	assert.False(t, watched[filepath.Join(dir, "node_modules")])
}

// ---------------------------------------------------------------------------
// Watch (integration)
// ---------------------------------------------------------------------------

func TestWatch_DeliversChangesAndStops(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "content.js")
	writeFile(t, src, "// v1")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist", "chrome"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, WatchOptions{
			Root:     dir,
			Skip:     []string{filepath.Join(dir, "dist")},
			Debounce: 50 * time.Millisecond,
			Logger:   discardLogger(),
		}, func(paths []string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, paths...)
		})
	}()

	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "dist", "chrome", "content.js"), "// out")
	writeFile(t, src, "// v2")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Contains(t, got, src)
	for _, p := range got {
		assert.NotContains(t, p, filepath.Join(dir, "dist"))
	}
	mu.Unlock()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func TestWatch_InvalidRoot(t *testing.T) {
	err := Watch(context.Background(), WatchOptions{Root: "/nonexistent/project/12345"}, func([]string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching project directory")
}

// ---------------------------------------------------------------------------
// StaticBundler
// ---------------------------------------------------------------------------

func TestNewStaticBundler_OutputContainingProject(t *testing.T) {
	dir := t.TempDir()

	_, err := NewStaticBundler(Options{Target: target.BuildTarget{
		Vendor:      target.Chrome,
		ProjectPath: filepath.Join(dir, "project"),
		OutputPath:  filepath.Join(dir, "chrome"),
	}})
	assert.ErrorContains(t, err, "must not contain the project")
}

func TestStaticBundler_ProductionBuild(t *testing.T) {
	project := newProject(t, mv3Manifest)
	writeFile(t, filepath.Join(project, "node_modules", "dep", "index.js"), "x")
	writeFile(t, filepath.Join(project, ".extdev.yaml"), "browser: chrome")

	b := newBundler(t, project, 8000, "")

	res, err := b.Build(context.Background(), Production)
	require.NoError(t, err)
	require.True(t, res.Success, res.Diagnostics)

	out := b.OutputPath()
	assert.Equal(t, filepath.Join(project, "dist", "chrome"), out)
	assert.FileExists(t, filepath.Join(out, "manifest.json"))
	assert.FileExists(t, filepath.Join(out, "content.js"))
	assert.NoFileExists(t, filepath.Join(out, "node_modules", "dep", "index.js"))
	assert.NoFileExists(t, filepath.Join(out, ".extdev.yaml"))
	assert.NoFileExists(t, filepath.Join(out, reload.ClientFileName), "production builds carry no reload client")
	assert.NoDirExists(t, filepath.Join(out, "dist"))
}

func TestStaticBundler_DevelopmentInjectsClient(t *testing.T) {
	project := newProject(t, mv3Manifest)
	b := newBundler(t, project, 8100, "")

	res, err := b.Build(context.Background(), Development)
	require.NoError(t, err)
	require.True(t, res.Success, res.Diagnostics)

	client, err := os.ReadFile(filepath.Join(res.OutputPath, reload.ClientFileName))
	require.NoError(t, err)
	assert.Contains(t, string(client), "const port = 8100;")

	staged, err := os.ReadFile(filepath.Join(res.OutputPath, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, ServiceWorkerWrapper, gjson.GetBytes(staged, "background.service_worker").Str)

	source, err := os.ReadFile(filepath.Join(project, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "background.js", gjson.GetBytes(source, "background.service_worker").Str, "source manifest untouched")
}

func TestStaticBundler_MissingReferencedFile(t *testing.T) {
	project := newProject(t, mv3Manifest)
	require.NoError(t, os.Remove(filepath.Join(project, "content.js")))

	res, err := newBundler(t, project, 0, "").Build(context.Background(), Production)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Diagnostics, "content.js")
}

func TestStaticBundler_MalformedManifest(t *testing.T) {
	project := newProject(t, "{not json")

	res, err := newBundler(t, project, 0, "").Build(context.Background(), Production)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Diagnostics, "malformed manifest JSON")
}

func TestStaticBundler_BuildCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}

	project := newProject(t, mv3Manifest)

	t.Run("output is staged", func(t *testing.T) {
		b := newBundler(t, project, 0, `echo "$EXTDEV_TARGET_BROWSER-$EXTDEV_TARGET_MODE" > generated.txt`)

		res, err := b.Build(context.Background(), Production)
		require.NoError(t, err)
		require.True(t, res.Success, res.Diagnostics)

		data, err := os.ReadFile(filepath.Join(res.OutputPath, "generated.txt"))
		require.NoError(t, err)
		assert.Equal(t, "chrome-production\n", string(data))
	})

	t.Run("failure becomes diagnostics", func(t *testing.T) {
		b := newBundler(t, project, 0, `echo "src/app.ts(3,1): error TS1005" && exit 3`)

		res, err := b.Build(context.Background(), Production)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Diagnostics, "TS1005")
	})
}

// ---------------------------------------------------------------------------
// Reload client injection
// ---------------------------------------------------------------------------

func TestInjectReloadClient(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		check    func(t *testing.T, dir string, staged []byte)
	}{
		{
			name:     "classic service worker",
			manifest: `{"manifest_version":3,"background":{"service_worker":"/sw.js"}}`,
			check: func(t *testing.T, dir string, staged []byte) {
				assert.Equal(t, ServiceWorkerWrapper, gjson.GetBytes(staged, "background.service_worker").Str)

				src, err := os.ReadFile(filepath.Join(dir, ServiceWorkerWrapper))
				require.NoError(t, err)
				assert.Equal(t, `importScripts("/__extdev_reload.js", "/sw.js");`+"\n", string(src))
			},
		},
		{
			name:     "module service worker",
			manifest: `{"manifest_version":3,"background":{"service_worker":"sw.js","type":"module"}}`,
			check: func(t *testing.T, dir string, staged []byte) {
				src, err := os.ReadFile(filepath.Join(dir, ServiceWorkerWrapper))
				require.NoError(t, err)
				assert.Equal(t, "import \"/__extdev_reload.js\";\nimport \"/sw.js\";\n", string(src))
				assert.Equal(t, "module", gjson.GetBytes(staged, "background.type").Str)
			},
		},
		{
			name:     "background scripts",
			manifest: `{"manifest_version":2,"background":{"scripts":["a.js","b.js"]}}`,
			check: func(t *testing.T, _ string, staged []byte) {
				assert.Equal(t, `["a.js","b.js","__extdev_reload.js"]`, gjson.GetBytes(staged, "background.scripts").Raw)
			},
		},
		{
			name:     "no background in v3",
			manifest: `{"manifest_version":3,"name":"x"}`,
			check: func(t *testing.T, _ string, staged []byte) {
				assert.Equal(t, reload.ClientFileName, gjson.GetBytes(staged, "background.service_worker").Str)
				assert.Equal(t, "x", gjson.GetBytes(staged, "name").Str)
			},
		},
		{
			name:     "no background in v2",
			manifest: `{"manifest_version":2}`,
			check: func(t *testing.T, _ string, staged []byte) {
				assert.Equal(t, `["__extdev_reload.js"]`, gjson.GetBytes(staged, "background.scripts").Raw)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "manifest.json"), tt.manifest)

			require.NoError(t, InjectReloadClient(dir, 8000))
			assert.FileExists(t, filepath.Join(dir, reload.ClientFileName))

			staged, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
			require.NoError(t, err)
			tt.check(t, dir, staged)
		})
	}
}

func TestInjectReloadClient_BackgroundPage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifest.json"), `{"manifest_version":2,"background":{"page":"bg.html"}}`)

	assert.ErrorIs(t, InjectReloadClient(dir, 8000), ErrBackgroundPage)
}

func TestInjectReloadClient_MissingManifest(t *testing.T) {
	assert.ErrorContains(t, InjectReloadClient(t.TempDir(), 8000), "reading staged manifest")
}

// ---------------------------------------------------------------------------
// Command
// ---------------------------------------------------------------------------

func TestCommand_Empty(t *testing.T) {
	assert.ErrorIs(t, Command{Line: "  "}.Run(context.Background(), io.Discard), ErrEmptyCommand)
}

func TestCommand_Cancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Command{Line: "sleep 5"}.Run(ctx, io.Discard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "development", Development.String())
	assert.Equal(t, "production", Production.String())
}
