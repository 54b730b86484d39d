package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/state"
	"github.com/davidthor/scdctl/pkg/state/backend"
)

// Environment variable names for state backend configuration.
const (
	// EnvStateBackend sets the state backend type (local, s3, gcs, azurerm).
	EnvStateBackend = "SCDCTL_STATE_BACKEND"

	// EnvStatePrefix is the prefix for backend-specific config environment variables.
	// For example, SCDCTL_STATE_PATH sets the "path" config for the local backend,
	// SCDCTL_STATE_BUCKET sets the "bucket" config for S3/GCS backends.
	EnvStatePrefix = "SCDCTL_STATE_"
)

// backendFlags are the state backend flags shared by every command that
// reads or writes environment state.
type backendFlags struct {
	backendType   string
	backendConfig []string
}

func (f *backendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backendType, "backend", "", "State backend type (local, s3, gcs, azurerm)")
	cmd.Flags().StringArrayVar(&f.backendConfig, "backend-config", nil, "Backend configuration (key=value)")
}

// createStateManagerWithConfig creates a state manager with the given backend type and config.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (--backend, --backend-config)
//  2. Environment variables (SCDCTL_STATE_BACKEND, SCDCTL_STATE_*)
//  3. Defaults (local backend rooted at the project's .deployer directory)
func createStateManagerWithConfig(defaultPath string, flags backendFlags, files state.Files) (state.Manager, error) {
	// Start with the default
	effectiveBackend := "local"
	effectiveConfig := make(map[string]string)

	// Apply environment variables
	if envBackend := os.Getenv(EnvStateBackend); envBackend != "" {
		effectiveBackend = envBackend
	}

	// Check for backend-specific env vars (SCDCTL_STATE_PATH, SCDCTL_STATE_BUCKET, etc.)
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvStatePrefix) && !strings.HasPrefix(env, EnvStateBackend) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				// Convert SCDCTL_STATE_PATH to "path", SCDCTL_STATE_BUCKET to "bucket", etc.
				key := strings.ToLower(strings.TrimPrefix(parts[0], EnvStatePrefix))
				effectiveConfig[key] = parts[1]
			}
		}
	}

	// Apply CLI flags (highest priority)
	if flags.backendType != "" {
		effectiveBackend = flags.backendType
	}

	for _, c := range flags.backendConfig {
		parts := strings.SplitN(c, "=", 2)
		if len(parts) == 2 {
			effectiveConfig[parts[0]] = parts[1]
		}
	}

	if effectiveBackend == "local" && effectiveConfig["path"] == "" {
		effectiveConfig["path"] = defaultPath
	}

	config := backend.Config{
		Type:   effectiveBackend,
		Config: effectiveConfig,
	}

	return state.NewManagerFromConfig(config, files)
}
