package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/extdev/internal/devloop"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [project-path]",
		Short: "Build the extension for production",
		Long: `Build the extension once per target browser for production.

Each browser builds into <output-dir>/<browser>. When --package-command is
set, it runs in the project directory after every successful build with
EXTDEV_TARGET_BROWSER, EXTDEV_TARGET_OUTPUT and EXTDEV_TARGET_MODE set.
A failed build prints its diagnostics, skips packaging and exits with 1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args, false)
			if err != nil {
				return err
			}

			var packager devloop.Packager
			if s.cfg.PackageCommand != "" {
				packager = &devloop.CommandPackager{Line: s.cfg.PackageCommand, Out: cmd.ErrOrStderr()}
			}

			o, err := s.orchestrator(false, packager)
			if err != nil {
				return err
			}

			return s.run(cmd.Context(), o.Build)
		},
	}

	registerTargetFlags(cmd)
	registerBuildFlags(cmd)
	registerPackageFlags(cmd)

	return cmd
}
