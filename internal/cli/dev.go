package cli

import (
	"github.com/spf13/cobra"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev [project-path]",
		Short: "Build, watch and live-reload the extension",
		Long: `Dev builds the extension for every target browser, opens a browser
with the unpacked build loaded, and rebuilds on every change.

After each successful rebuild the running extension is told over a local
WebSocket which part changed: the manifest, a locale, the service worker
or a declarativeNetRequest ruleset. Browser i listens on --port plus i.

Build failures are reported and the session keeps watching. A browser
that crashes is relaunched with backoff until --max-restarts consecutive
failures. Press Ctrl+C to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args, true)
			if err != nil {
				return err
			}

			o, err := s.orchestrator(s.cfg.Open, nil)
			if err != nil {
				return err
			}

			return s.run(cmd.Context(), o.Dev)
		},
	}

	registerTargetFlags(cmd)
	registerBuildFlags(cmd)
	registerDevFlags(cmd)
	registerBrowserFlags(cmd)

	return cmd
}
