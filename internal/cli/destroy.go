package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/engine"
	"github.com/davidthor/scdctl/pkg/errors"
)

func newDestroyCmd() *cobra.Command {
	var (
		environment string
		dryRun      bool
		force       bool
		lock        bool
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove everything scdctl created in an environment",
		Long: `Terminate every live product instance, then delete product registrations,
portfolios, container registries, the template bucket and the launch role.
Each step continues past failures, which are reported as warnings. A clean
run forgets the environment's recorded state. After failures only the
objects that could not be removed stay recorded; run destroy again to retry.

Requires --force, or --dry-run to preview.

Examples:
  scdctl destroy -e dev --dry-run
  scdctl destroy -e dev --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun && !force {
				return errors.GuardRejection("destroy")
			}
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openEngine(cmd, backend, lock)
			if err != nil {
				return err
			}
			_, err = eng.Destroy(context.Background(), engine.DestroyOptions{
				Environment: env,
				DryRun:      dryRun,
				Force:       force,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be removed without making changes")
	cmd.Flags().BoolVar(&force, "force", false, "Confirm destruction")
	cmd.Flags().BoolVar(&lock, "lock", true, "Hold the environment state lock while running")
	backend.register(cmd)

	return cmd
}
