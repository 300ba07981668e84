// Package ui renders the user-facing status lines of a development
// session. Colors follow the output writer's terminal capabilities and can
// be switched off entirely.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hupe1980/extdev/internal/manifest"
	"github.com/hupe1980/extdev/internal/target"
)

type styles struct {
	vendor  lipgloss.Style
	info    lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	detail  lipgloss.Style
	subtle  lipgloss.Style
	heading lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, noColor bool) styles {
	if noColor {
		plain := r.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain, plain}
	}

	return styles{
		vendor:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		info:    r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		detail:  r.NewStyle().Foreground(lipgloss.Color("252")),
		subtle:  r.NewStyle().Foreground(lipgloss.Color("240")),
		heading: r.NewStyle().Bold(true),
	}
}

// Printer writes status messages. It is safe for concurrent use by the
// per-vendor loops.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	st    styles
	quiet bool
	now   func() time.Time
}

// Options configures a Printer.
type Options struct {
	NoColor bool

	// Quiet suppresses everything except failures.
	Quiet bool
}

// New creates a Printer writing to w.
func New(w io.Writer, opts Options) *Printer {
	return &Printer{
		w:     w,
		st:    newStyles(lipgloss.NewRenderer(w), opts.NoColor),
		quiet: opts.Quiet,
		now:   time.Now,
	}
}

func (p *Printer) line(v target.Vendor, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s %s %s\n",
		p.st.subtle.Render(p.now().Format("15:04:05")),
		p.st.vendor.Render("["+v.String()+"]"),
		msg)
}

// Building reports the start of a build.
func (p *Printer) Building(v target.Vendor, mode string) {
	if p.quiet {
		return
	}

	p.line(v, p.st.info.Render("building ("+mode+")"))
}

// Ready reports a successful build. info may be nil.
func (p *Printer) Ready(v target.Vendor, outputPath string, info *manifest.Info) {
	if p.quiet {
		return
	}

	msg := p.st.ok.Render("ready")
	if info != nil && info.Name != "" {
		msg += " " + p.st.heading.Render(info.Name) + " " + info.DisplayVersion()
	}

	p.line(v, msg+" "+p.st.subtle.Render(outputPath))
}

// Failed reports a failed build with its full diagnostics.
func (p *Printer) Failed(v target.Vendor, diagnostics string) {
	msg := p.st.fail.Render("build failed")

	if d := strings.TrimSpace(diagnostics); d != "" {
		for _, l := range strings.Split(d, "\n") {
			msg += "\n  " + p.st.detail.Render(l)
		}
	}

	p.line(v, msg)
}

// Packaged reports a completed packaging hook.
func (p *Printer) Packaged(v target.Vendor) {
	if p.quiet {
		return
	}

	p.line(v, p.st.ok.Render("packaged"))
}

// Unsupported reports a vendor without browser launch support.
func (p *Printer) Unsupported(v target.Vendor) {
	if p.quiet {
		return
	}

	p.line(v, p.st.warn.Render("browser launch not supported, skipping"))
}

// Watching reports that a dev loop is waiting for changes.
func (p *Printer) Watching(v target.Vendor, port int) {
	if p.quiet {
		return
	}

	msg := p.st.info.Render("watching for changes")
	if port > 0 {
		msg += " " + p.st.subtle.Render(fmt.Sprintf("reload ws://127.0.0.1:%d", port))
	}

	p.line(v, msg)
}
