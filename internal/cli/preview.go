package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hupe1980/extdev/internal/browser"
	"github.com/hupe1980/extdev/internal/target"
)

func newPreviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [project-path]",
		Short: "Open an existing build in a browser",
		Long: `Preview launches a browser for every target with its existing build
output loaded. Nothing is built and no reload channel is opened; run
build or start first.

Browsers without launch support are reported and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args, false)
			if err != nil {
				return err
			}

			o, err := s.orchestrator(true, nil)
			if err != nil {
				return err
			}

			return s.run(cmd.Context(), func(ctx context.Context, t target.BuildTarget) error {
				if err := o.Preview(ctx, t); err != nil && !errors.Is(err, browser.ErrUnsupportedVendor) {
					return err
				}

				return nil
			})
		},
	}

	registerTargetFlags(cmd)
	registerBrowserFlags(cmd)

	return cmd
}
