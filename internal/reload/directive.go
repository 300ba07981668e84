// Package reload implements the live-update side of a development session:
// classifying changed files into reload directives and broadcasting them to
// connected extension runtimes over a per-target WebSocket channel.
package reload

import "fmt"

// DirectiveKind is the closed set of reload instructions.
type DirectiveKind int

// Directive kinds, in dispatch precedence order.
const (
	ManifestChanged DirectiveKind = iota + 1
	LocalesChanged
	ServiceWorkerChanged
	DeclarativeNetRequestChanged
)

// wire values of each kind as understood by the reload client.
var wireNames = map[DirectiveKind]string{
	ManifestChanged:              "manifest.json",
	LocalesChanged:               "_locales",
	ServiceWorkerChanged:         "service_worker",
	DeclarativeNetRequestChanged: "declarative_net_request",
}

// String returns the wire name of the kind.
func (k DirectiveKind) String() string {
	if name, ok := wireNames[k]; ok {
		return name
	}

	return fmt.Sprintf("DirectiveKind(%d)", int(k))
}

// Directive is a typed reload instruction. File is the path that caused it
// and is used for diagnostics only; it is never sent to clients.
type Directive struct {
	Kind DirectiveKind
	File string
}

// Message is the payload delivered to reload clients.
type Message struct {
	ChangedFile string `json:"changedFile"`
}

// Message returns the wire payload for d.
func (d Directive) Message() Message {
	return Message{ChangedFile: d.Kind.String()}
}
