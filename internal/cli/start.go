package cli

import (
	"github.com/spf13/cobra"
)

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [project-path]",
		Short: "Build the extension for production without packaging",
		Long: `Start builds the extension once per target browser in production mode,
without a reload channel, a browser or the packaging hook. Use preview to
open the result in a browser.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args, false)
			if err != nil {
				return err
			}

			o, err := s.orchestrator(false, nil)
			if err != nil {
				return err
			}

			return s.run(cmd.Context(), o.Start)
		},
	}

	registerTargetFlags(cmd)
	registerBuildFlags(cmd)

	return cmd
}
