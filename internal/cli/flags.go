package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/extdev/internal/config"
)

// Command flags are not bound to option structs: config.Load binds them into
// viper so that each one can also come from EXTDEV_* or the config file.

// registerTargetFlags adds the flags that select and locate build targets.
func registerTargetFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("browser", "b", "chrome", "target browsers: chrome, edge, firefox or all (comma-separated)")
	f.String("output-dir", config.DefaultOutputDir, "build output root; each browser builds into its own subdirectory")

	_ = cmd.RegisterFlagCompletionFunc("browser", completeBrowsers)
	_ = cmd.MarkFlagDirname("output-dir")
	cmd.ValidArgsFunction = completeProjectDir
}

// registerBuildFlags adds the flags that control how a project is built.
func registerBuildFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("build-command", "", "command run in the project directory before every build")
	f.StringSlice("ignore", nil, "extra glob patterns excluded from builds and watching")
}

// registerBrowserFlags adds the browser launch flags.
func registerBrowserFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("profile", "", "browser user data directory (default: fresh temporary profile)")
	f.String("chromium-binary", "", "Chrome or Edge executable")
	f.String("gecko-binary", "", "Firefox executable (reserved: Firefox cannot be launched yet, so this has no effect)")
	f.Int("max-restarts", config.DefaultMaxRestarts, "consecutive browser relaunches before giving up")
}

// registerDevFlags adds the watch and reload flags of the dev command.
func registerDevFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("port", config.DefaultPort, "reload channel port of the first browser; browser i uses port+i, 0 disables reloading")
	f.Duration("debounce", config.DefaultDebounce, "quiet period before a batch of changes is rebuilt")
	f.Bool("open", true, "launch a browser with the extension loaded")
}

// registerPackageFlags adds the packaging hook flag.
func registerPackageFlags(cmd *cobra.Command) {
	cmd.Flags().String("package-command", "", "command run in the project directory after every successful build")
}
