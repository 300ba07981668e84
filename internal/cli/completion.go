package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/extdev/internal/target"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for extdev.

Besides subcommands and flags, the scripts complete browser names for
--browser (including comma-separated lists), output formats for
inspect --format, and directories for the project path.

  bash:        source <(extdev completion bash)
  zsh:         extdev completion zsh > "${fpath[1]}/_extdev"
  fish:        extdev completion fish > ~/.config/fish/completions/extdev.fish
  powershell:  extdev completion powershell | Out-String | Invoke-Expression`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root, w := cmd.Root(), cmd.OutOrStdout()

			switch args[0] {
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(w)
			default:
				return root.GenBashCompletionV2(w, true)
			}
		},
	}

	return cmd
}

// completeBrowsers completes the comma-separated --browser list. Browsers
// already named earlier in the list are not offered again.
func completeBrowsers(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var prefix string
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix = toComplete[:i+1]
	}

	chosen := strings.Split(prefix, ",")

	var out []string
	if prefix == "" {
		out = append(out, target.All)
	}

	for _, v := range target.Known() {
		if !slices.Contains(chosen, v.String()) {
			out = append(out, prefix+v.String())
		}
	}

	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeProjectDir completes the single project-path argument with
// directories.
func completeProjectDir(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	return nil, cobra.ShellCompDirectiveFilterDirs
}
