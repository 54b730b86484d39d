package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/engine"
)

func newSyncCmd() *cobra.Command {
	var (
		environment string
		dryRun      bool
		lock        bool
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile base infrastructure for an environment",
		Long: `Create or adopt the base infrastructure an environment needs: the launch
role, the template bucket, container registries, portfolios and product
registrations. Existing resources are reused and recorded, never recreated.

Examples:
  scdctl sync -e dev
  scdctl sync -e prod --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openEngine(cmd, backend, lock)
			if err != nil {
				return err
			}
			_, err = eng.Sync(context.Background(), engine.SyncOptions{
				Environment: env,
				DryRun:      dryRun,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be created without making changes")
	cmd.Flags().BoolVar(&lock, "lock", true, "Hold the environment state lock while running")
	backend.register(cmd)

	return cmd
}
