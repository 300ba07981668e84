package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/extdev/internal/reload"
	"github.com/hupe1980/extdev/internal/target"
)

// ServiceWorkerWrapper is the generated service worker that loads the
// reload client ahead of the extension's own worker.
const ServiceWorkerWrapper = "__extdev_sw.js"

// ErrBackgroundPage is returned when the manifest uses a background page,
// which has no script list the reload client can join.
var ErrBackgroundPage = errors.New("background pages cannot load the reload client")

// InjectReloadClient writes the reload client for port into outputDir and
// rewrites the staged manifest so the extension loads it:
//
//   - an existing service worker is replaced by a wrapper that loads the
//     client first and the original worker second;
//   - background scripts get the client appended;
//   - without any background context one is added.
func InjectReloadClient(outputDir string, port int) error {
	if _, err := reload.WriteClient(outputDir, port); err != nil {
		return err
	}

	manifestPath := filepath.Join(outputDir, target.ManifestFileName)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading staged manifest: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return fmt.Errorf("staged manifest %s: invalid JSON", manifestPath)
	}

	root := gjson.ParseBytes(data)
	bg := root.Get("background")

	switch {
	case bg.Get("service_worker").Type == gjson.String:
		worker := strings.TrimLeft(bg.Get("service_worker").Str, "/")

		src, wrapErr := wrapperSource(worker, bg.Get("type").Str == "module")
		if wrapErr != nil {
			return wrapErr
		}

		if err := os.WriteFile(filepath.Join(outputDir, ServiceWorkerWrapper), src, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("writing service worker wrapper: %w", err)
		}

		data, err = sjson.SetBytes(data, "background.service_worker", ServiceWorkerWrapper)

	case bg.Get("scripts").IsArray():
		data, err = sjson.SetBytes(data, "background.scripts.-1", reload.ClientFileName)

	case bg.Get("page").Exists():
		return ErrBackgroundPage

	case root.Get("manifest_version").Int() >= 3:
		data, err = sjson.SetBytes(data, "background.service_worker", reload.ClientFileName)

	default:
		data, err = sjson.SetBytes(data, "background.scripts", []string{reload.ClientFileName})
	}

	if err != nil {
		return fmt.Errorf("rewriting staged manifest: %w", err)
	}

	if err := os.WriteFile(manifestPath, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("writing staged manifest: %w", err)
	}

	return nil
}

func wrapperSource(worker string, module bool) ([]byte, error) {
	client, err := json.Marshal("/" + reload.ClientFileName)
	if err != nil {
		return nil, err
	}

	orig, err := json.Marshal("/" + worker)
	if err != nil {
		return nil, err
	}

	if module {
		return fmt.Appendf(nil, "import %s;\nimport %s;\n", client, orig), nil
	}

	return fmt.Appendf(nil, "importScripts(%s, %s);\n", client, orig), nil
}
