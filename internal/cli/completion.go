package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/ciworkflow"
)

func init() {
	rootCmd.AddCommand(newCompletionCmd())
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for scdctl.

To load completions:

Bash:
  $ source <(scdctl completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ scdctl completion bash > /etc/bash_completion.d/scdctl
  # macOS:
  $ scdctl completion bash > $(brew --prefix)/etc/bash_completion.d/scdctl

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ scdctl completion zsh > "${fpath[1]}/_scdctl"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ scdctl completion fish | source

  # To load completions for each session, execute once:
  $ scdctl completion fish > ~/.config/fish/completions/scdctl.fish

PowerShell:
  PS> scdctl completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> scdctl completion powershell > scdctl.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unknown shell: %s", args[0])
			}
		},
	}

	return cmd
}

// registerCompletions adds flag completion to every command in the tree.
func registerCompletions(cmd *cobra.Command) {
	if cmd.Flags().Lookup("environment") != nil {
		_ = cmd.RegisterFlagCompletionFunc("environment", completeEnvironmentNames)
	}
	if cmd.Flags().Lookup("product") != nil {
		_ = cmd.RegisterFlagCompletionFunc("product", completeProductNames)
	}
	if cmd.Flags().Lookup("backend") != nil {
		_ = cmd.RegisterFlagCompletionFunc("backend", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return []string{"local", "s3", "gcs", "azurerm"}, cobra.ShellCompDirectiveNoFileComp
		})
	}
	if cmd.Flags().Lookup("provider") != nil {
		_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return ciworkflow.ValidProviders(), cobra.ShellCompDirectiveNoFileComp
		})
	}
	for _, sub := range cmd.Commands() {
		registerCompletions(sub)
	}
}

// completeEnvironmentNames returns the environments configured in profiles.yaml.
func completeEnvironmentNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ws, err := loadWorkspace()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(ws.profiles.Profiles))
	for name := range ws.profiles.Profiles {
		names = append(names, name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeProductNames returns the products declared in catalog.yaml.
func completeProductNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ws, err := loadWorkspace()
	if err != nil || ws.catalog == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return ws.catalog.ProductNames(), cobra.ShellCompDirectiveNoFileComp
}
