// Package cli implements the scdctl CLI commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import state backends to register them via init()
	_ "github.com/davidthor/scdctl/pkg/state/backend/azurerm"
	_ "github.com/davidthor/scdctl/pkg/state/backend/gcs"
	_ "github.com/davidthor/scdctl/pkg/state/backend/local"
	_ "github.com/davidthor/scdctl/pkg/state/backend/s3"
)

var (
	cfgFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scdctl",
	Short: "Deploy Service Catalog products in dependency order",
	Long: `scdctl manages AWS Service Catalog products from a project directory.

Desired state lives in .deployer/ (profiles, bootstrap and catalog YAML) and
products/ (one CloudFormation template per product). scdctl reconciles the
base infrastructure, publishes template versions, and provisions products in
dependency order, feeding each product's outputs into its dependents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scdctl/config.yaml)")
	rootCmd.PersistentFlags().String("project", "", "Project root (directory that contains .deployer/)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "auto", "Log format (console, json, auto)")

	// Bind to viper
	_ = viper.BindPFlag(ConfigKeyProject, rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag(ConfigKeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag(ConfigKeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))
	viper.SetDefault(ConfigKeyPollInterval, "10s")
	viper.SetDefault(ConfigKeyPollTimeout, "20m")
	viper.SetEnvPrefix("SCDCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newDestroyCmd())
	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newProductsCmd())
	rootCmd.AddCommand(newRegistriesCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	registerCompletions(rootCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.scdctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}
