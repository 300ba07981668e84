package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/extdev/internal/browser"
	"github.com/hupe1980/extdev/internal/manifest"
)

// inspectResult is the structured output of the inspect command.
type inspectResult struct {
	Extension extensionInfo `json:"extension" yaml:"extension"`
	Locales   []string      `json:"locales,omitempty" yaml:"locales,omitempty"`
	Scripts   []entryInfo   `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	JSON      []entryInfo   `json:"json,omitempty" yaml:"json,omitempty"`
	Targets   []targetInfo  `json:"targets" yaml:"targets"`
}

type extensionInfo struct {
	Name            string `json:"name" yaml:"name"`
	Version         string `json:"version" yaml:"version"`
	ManifestVersion int    `json:"manifestVersion" yaml:"manifestVersion"`
	DefaultLocale   string `json:"defaultLocale,omitempty" yaml:"defaultLocale,omitempty"`
}

type entryInfo struct {
	Entry string   `json:"entry" yaml:"entry"`
	Files []string `json:"files" yaml:"files"`
}

type targetInfo struct {
	Browser string `json:"browser" yaml:"browser"`
	Output  string `json:"output" yaml:"output"`
	Launch  bool   `json:"launch" yaml:"launch"`
}

func newInspectCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect [project-path]",
		Short: "Show how extdev sees an extension project",
		Long: `Inspect reads the project's manifest.json and prints the extension's
identity, the locale directories, the script and JSON entries that drive
reload decisions, and the build output of every target browser.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args, false)
			if err != nil {
				return err
			}

			result, err := s.inspect()
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			w := cmd.OutOrStdout()

			switch format {
			case "json":
				return renderJSON(w, result)
			case "yaml":
				return renderYAML(w, result)
			case "table":
				return renderTable(w, result)
			default:
				return &ExitError{Code: 2, Err: fmt.Errorf("unknown format %q: expected table, json, yaml", format)}
			}
		},
	}

	registerTargetFlags(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json, yaml")
	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions([]string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

func (s *session) inspect() (*inspectResult, error) {
	manifestPath := s.targets[0].ManifestPath
	dir := filepath.Dir(manifestPath)

	info, err := manifest.ReadInfo(manifestPath)
	if err != nil {
		return nil, err
	}

	desc, err := manifest.Classify(manifestPath)
	if err != nil {
		return nil, err
	}

	result := &inspectResult{
		Extension: extensionInfo{
			Name:            info.Name,
			Version:         info.DisplayVersion(),
			ManifestVersion: info.ManifestVersion,
			DefaultLocale:   info.DefaultLocale,
		},
		Locales: relativeAll(dir, desc.Locales),
	}

	for _, e := range desc.ScriptEntries() {
		result.Scripts = append(result.Scripts, entryInfo{Entry: e, Files: relativeAll(dir, desc.Scripts[e])})
	}

	for _, e := range desc.JSONEntries() {
		result.JSON = append(result.JSON, entryInfo{Entry: e, Files: relativeAll(dir, desc.JSON[e])})
	}

	table := browser.DefaultTable()

	for _, t := range s.targets {
		result.Targets = append(result.Targets, targetInfo{
			Browser: t.Vendor.String(),
			Output:  t.OutputPath,
			Launch:  table.Supports(t.Vendor),
		})
	}

	return result, nil
}

func relativeAll(dir string, paths []string) []string {
	out := make([]string, 0, len(paths))

	for _, p := range paths {
		if rel, err := filepath.Rel(dir, p); err == nil {
			p = filepath.ToSlash(rel)
		}

		out = append(out, p)
	}

	return out
}

func renderJSON(w io.Writer, result *inspectResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(result)
}

func renderYAML(w io.Writer, result *inspectResult) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(result); err != nil {
		return err
	}

	return enc.Close()
}

func renderTable(w io.Writer, result *inspectResult) error {
	ext := result.Extension

	_, _ = fmt.Fprintf(w, "\n=== Extension: %s ===\n", ext.Name)
	_, _ = fmt.Fprintf(w, "Version:          %s\n", ext.Version)
	_, _ = fmt.Fprintf(w, "Manifest version: %d\n", ext.ManifestVersion)

	if ext.DefaultLocale != "" {
		_, _ = fmt.Fprintf(w, "Default locale:   %s\n", ext.DefaultLocale)
	}

	if len(result.Locales) > 0 {
		_, _ = fmt.Fprintf(w, "\n=== Locales (%d) ===\n", len(result.Locales))

		for _, l := range result.Locales {
			_, _ = fmt.Fprintf(w, "  %s\n", l)
		}
	}

	printEntries(w, "Scripts", result.Scripts)
	printEntries(w, "JSON", result.JSON)

	_, _ = fmt.Fprintf(w, "\n=== Targets (%d) ===\n", len(result.Targets))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BROWSER\tLAUNCH\tOUTPUT")

	for _, t := range result.Targets {
		launch := "yes"
		if !t.Launch {
			launch = "no"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Browser, launch, t.Output)
	}

	return tw.Flush()
}

func printEntries(w io.Writer, title string, entries []entryInfo) {
	if len(entries) == 0 {
		return
	}

	_, _ = fmt.Fprintf(w, "\n=== %s (%d) ===\n", title, len(entries))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ENTRY\tFILES")

	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.Entry, strings.Join(e.Files, ", "))
	}

	_ = tw.Flush()
}
