package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davidthor/scdctl/pkg/errors"
)

// Viper/config keys.
const (
	ConfigKeyDefaultEnvironment = "default_environment"
	ConfigKeyProject            = "project"
	ConfigKeyLogLevel           = "log_level"
	ConfigKeyLogFormat          = "log_format"
	ConfigKeyPollInterval       = "poll_interval"
	ConfigKeyPollTimeout        = "poll_timeout"

	// EnvEnvironment is the environment variable for the target environment.
	EnvEnvironment = "SCDCTL_ENVIRONMENT"
)

// configKeys lists the keys `config set` accepts, with their help text.
var configKeys = map[string]string{
	ConfigKeyDefaultEnvironment: "The environment used when -e/--environment is not specified.",
	ConfigKeyProject:            "Project root used when --project is not specified.",
	ConfigKeyLogLevel:           "Log level (debug, info, warn, error).",
	ConfigKeyLogFormat:          "Log format (console, json, auto).",
	ConfigKeyPollInterval:       "Interval between provisioning record polls (e.g. 10s).",
	ConfigKeyPollTimeout:        "Maximum wait for a provisioning record (e.g. 20m).",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `Get and set scdctl CLI configuration values stored in ~/.scdctl/config.yaml.`,
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigListCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in ~/.scdctl/config.yaml.

Available keys:
` + configKeyHelp() + `
Examples:
  scdctl config set default-environment dev
  scdctl config set poll-timeout 30m`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]

			// Normalize key names: allow dashes in CLI, store with underscores
			viperKey := normalizeConfigKey(key)
			if _, ok := configKeys[viperKey]; !ok {
				return fmt.Errorf("unknown configuration key %q\n\nAvailable keys:\n%s", key, configKeyHelp())
			}
			if viperKey == ConfigKeyPollInterval || viperKey == ConfigKeyPollTimeout {
				if _, err := time.ParseDuration(value); err != nil {
					return fmt.Errorf("invalid duration %q for %s: %w", value, key, err)
				}
			}

			viper.Set(viperKey, value)
			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value from ~/.scdctl/config.yaml.

Examples:
  scdctl config get default-environment`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			viperKey := normalizeConfigKey(key)

			value := viper.GetString(viperKey)
			if value == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", key)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), value)
			}
			return nil
		},
	}

	return cmd
}

func newConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long:  `List all configuration values from ~/.scdctl/config.yaml.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration:")
			for _, key := range sortedConfigKeys() {
				value := viper.GetString(key)
				if value == "" {
					value = "(not set)"
				}
				fmt.Fprintf(out, "  %s = %s\n", strings.ReplaceAll(key, "_", "-"), value)
			}
			return nil
		},
	}

	return cmd
}

// resolveEnvironment resolves the target environment from multiple sources.
//
// Precedence (highest to lowest):
//  1. -e/--environment flag (explicit)
//  2. SCDCTL_ENVIRONMENT environment variable
//  3. default_environment from ~/.scdctl/config.yaml
//  4. Error if none set
func resolveEnvironment(flagValue string) (string, error) {
	// 1. Explicit flag
	if flagValue != "" {
		return flagValue, nil
	}

	// 2. Environment variable
	if envVal := os.Getenv(EnvEnvironment); envVal != "" {
		return envVal, nil
	}

	// 3. Config file default
	if configVal := viper.GetString(ConfigKeyDefaultEnvironment); configVal != "" {
		return configVal, nil
	}

	// 4. Error
	return "", errors.ConfigurationError(
		"no environment specified\n\n"+
			"Specify an environment using one of:\n"+
			"  -e/--environment flag\n"+
			"  SCDCTL_ENVIRONMENT environment variable\n"+
			"  scdctl config set default-environment <name>", nil)
}

// writeConfig writes the current viper config to the config file.
func writeConfig() error {
	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir := filepath.Join(home, ".scdctl")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}

	return viper.WriteConfigAs(configPath)
}

// normalizeConfigKey converts CLI-style keys (with dashes) to viper-style keys (with underscores).
func normalizeConfigKey(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

func sortedConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func configKeyHelp() string {
	var b strings.Builder
	for _, key := range sortedConfigKeys() {
		fmt.Fprintf(&b, "  %-22s %s\n", strings.ReplaceAll(key, "_", "-"), configKeys[key])
	}
	return b.String()
}
