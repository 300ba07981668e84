package reload

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// ClientFileName is the file name of the generated reload client.
const ClientFileName = "__extdev_reload.js"

//go:embed client.js.tmpl
var clientSource string

var clientTemplate = template.Must(template.New("client").Parse(clientSource))

// RenderClient renders the browser-side reload client bound to port.
func RenderClient(port int) ([]byte, error) {
	if port <= 0 {
		return nil, fmt.Errorf("invalid reload port %d", port)
	}

	kinds := make([]string, 0, len(wireNames))
	for _, k := range []DirectiveKind{ManifestChanged, LocalesChanged, ServiceWorkerChanged, DeclarativeNetRequestChanged} {
		kinds = append(kinds, k.String())
	}

	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return nil, fmt.Errorf("encoding directive kinds: %w", err)
	}

	var buf bytes.Buffer
	if err := clientTemplate.Execute(&buf, struct {
		Port  int
		Kinds string
	}{Port: port, Kinds: string(kindsJSON)}); err != nil {
		return nil, fmt.Errorf("rendering reload client: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteClient writes the reload client for port into dir and returns the
// file path. Each build target writes into its own output directory, so
// concurrent sessions never share the file.
func WriteClient(dir string, port int) (string, error) {
	data, err := RenderClient(port)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	p := filepath.Join(dir, ClientFileName)
	if err := os.WriteFile(p, data, 0o644); err != nil { //nolint:gosec
		return "", fmt.Errorf("writing reload client %s: %w", p, err)
	}

	return p, nil
}
