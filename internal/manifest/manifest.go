// Package manifest classifies the files referenced by a browser-extension
// manifest into locale, script and JSON asset sets.
//
// Classification re-reads the manifest from disk on every call. The
// manifest itself can be the file that changed, so nothing is cached.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Reserved entry names.
const (
	ServiceWorkerEntry         = "background/service_worker"
	BackgroundScriptsEntry     = "background/scripts"
	UserScriptEntry            = "user_scripts/api_script"
	DeclarativeNetRequestEntry = "declarative_net_request"
	ManagedSchemaEntry         = "storage/managed_schema"

	contentScriptPrefix = "content_scripts/content-"
	localesDir          = "_locales"
)

// ErrMalformed is wrapped by a ParseError when the manifest is not a JSON object.
var ErrMalformed = errors.New("malformed manifest JSON")

// ParseError reports a manifest that is missing, unreadable, or malformed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Descriptor is the categorized view of the files a manifest references.
// All paths are absolute.
type Descriptor struct {
	// Locales holds every file below _locales when default_locale is set.
	Locales []string

	// Scripts maps an entry name to its ordered script (and style) files.
	Scripts map[string][]string

	// JSON maps an entry name to the JSON files it references.
	JSON map[string][]string

	// Raw is the manifest document the descriptor was built from.
	Raw []byte
}

// ScriptEntries returns the script entry names in sorted order.
func (d *Descriptor) ScriptEntries() []string { return sortedKeys(d.Scripts) }

// JSONEntries returns the JSON asset entry names in sorted order.
func (d *Descriptor) JSONEntries() []string { return sortedKeys(d.JSON) }

// Files returns every referenced file, de-duplicated, in sorted order.
func (d *Descriptor) Files() []string {
	seen := make(map[string]struct{})

	add := func(paths []string) {
		for _, p := range paths {
			seen[p] = struct{}{}
		}
	}

	add(d.Locales)

	for _, files := range d.Scripts {
		add(files)
	}

	for _, files := range d.JSON {
		add(files)
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

// Classify parses the manifest at manifestPath and returns its descriptor.
// Any failure is reported as a *ParseError.
func Classify(manifestPath string) (*Descriptor, error) {
	data, root, err := load(manifestPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(manifestPath)

	d := &Descriptor{
		Scripts: make(map[string][]string),
		JSON:    make(map[string][]string),
		Raw:     data,
	}

	if root.Get("default_locale").Exists() {
		locales, locErr := localeFiles(filepath.Join(dir, localesDir))
		if locErr != nil {
			return nil, &ParseError{Path: manifestPath, Err: locErr}
		}

		d.Locales = locales
	}

	setEntry(d.Scripts, ServiceWorkerEntry, dir, stringValues(root.Get("background.service_worker")))
	setEntry(d.Scripts, BackgroundScriptsEntry, dir, stringValues(root.Get("background.scripts")))
	setEntry(d.Scripts, UserScriptEntry, dir, stringValues(root.Get("user_scripts.api_script")))

	for i, cs := range root.Get("content_scripts").Array() {
		files := append(stringValues(cs.Get("js")), stringValues(cs.Get("css"))...)
		setEntry(d.Scripts, contentScriptPrefix+strconv.Itoa(i), dir, files)
	}

	var rules []string
	for _, r := range root.Get("declarative_net_request.rule_resources").Array() {
		rules = append(rules, stringValues(r.Get("path"))...)
	}

	setEntry(d.JSON, DeclarativeNetRequestEntry, dir, rules)
	setEntry(d.JSON, ManagedSchemaEntry, dir, stringValues(root.Get("storage.managed_schema")))

	return d, nil
}

// load reads and validates the manifest document.
func load(manifestPath string) ([]byte, gjson.Result, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, gjson.Result{}, &ParseError{Path: manifestPath, Err: err}
	}

	if !gjson.ValidBytes(data) {
		return nil, gjson.Result{}, &ParseError{Path: manifestPath, Err: ErrMalformed}
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, gjson.Result{}, &ParseError{Path: manifestPath, Err: ErrMalformed}
	}

	return data, root, nil
}

// stringValues extracts string values from a result that is either a single
// string or an array of strings. Empty values are dropped.
func stringValues(r gjson.Result) []string {
	if !r.Exists() {
		return nil
	}

	var values []gjson.Result
	if r.IsArray() {
		values = r.Array()
	} else {
		values = []gjson.Result{r}
	}

	out := make([]string, 0, len(values))

	for _, v := range values {
		if v.Type == gjson.String && v.Str != "" {
			out = append(out, v.Str)
		}
	}

	return out
}

func setEntry(m map[string][]string, entry, dir string, files []string) {
	if len(files) == 0 {
		return
	}

	resolved := make([]string, 0, len(files))
	for _, f := range files {
		resolved = append(resolved, Resolve(dir, f))
	}

	m[entry] = resolved
}

// Resolve turns a manifest reference into an absolute path below dir.
// Leading slashes are extension-root relative.
func Resolve(dir, ref string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.TrimLeft(ref, "/")))
}

// localeFiles lists every regular file below root. A missing directory
// yields no files.
func localeFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipAll
			}

			return err
		}

		if d.Type().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing locales: %w", err)
	}

	return files, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
