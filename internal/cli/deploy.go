package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/engine"
	"github.com/davidthor/scdctl/pkg/errors"
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Validate, plan, publish, apply and terminate products",
		Long: `Commands for the product lifecycle in one environment.

A product is published (its template uploaded and registered as a new
version), then applied (provisioned, or updated in place when an instance
already exists), and finally terminated. Apply walks the catalog in
dependency order and passes each product's outputs to its dependents.`,
	}

	cmd.AddCommand(newDeployValidateCmd())
	cmd.AddCommand(newDeployPlanCmd())
	cmd.AddCommand(newDeployPublishCmd())
	cmd.AddCommand(newDeployApplyCmd())
	cmd.AddCommand(newDeployStatusCmd())
	cmd.AddCommand(newDeployTerminateCmd())

	return cmd
}

func newDeployValidateCmd() *cobra.Command {
	var (
		environment string
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog graph and bootstrap state",
		Long: `Check that catalog dependencies are acyclic, that every parameter mapping
references an output its dependency declares, and that the environment has
been synced. Makes no remote calls.

Examples:
  scdctl deploy validate -e dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openEngine(cmd, backend, false)
			if err != nil {
				return err
			}
			if err := eng.Validate(context.Background(), env); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Validation passed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	backend.register(cmd)

	return cmd
}

func newDeployPlanCmd() *cobra.Command {
	var (
		environment string
		products    []string
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the deployment order",
		Long: `Print the order apply would process products in, with the action each
product would get. Makes no remote calls.

Examples:
  scdctl deploy plan -e dev
  scdctl deploy plan -e dev -p database -p app`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openEngine(cmd, backend, false)
			if err != nil {
				return err
			}
			steps, err := eng.Plan(context.Background(), env, products)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Deployment order:")
			for i, step := range steps {
				fmt.Fprintf(out, "  %d. %-20s %s\n", i+1, step.Product, step.Action())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	cmd.Flags().StringArrayVarP(&products, "product", "p", nil, "Product to include (repeatable, default all)")
	backend.register(cmd)

	return cmd
}

func newDeployPublishCmd() *cobra.Command {
	var (
		environment string
		products    []string
		dryRun      bool
		force       bool
		lock        bool
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish product templates as new versions",
		Long: `Upload each product's template to the template bucket and register it as
a new provisioning artifact. All products published together share one
version label.

Examples:
  scdctl deploy publish -e dev
  scdctl deploy publish -e dev -p networking --dry-run`,
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
			result, err := eng.Publish(context.Background(), engine.PublishOptions{
				Environment: env,
				Products:    products,
				DryRun:      dryRun,
				Force:       force,
			})
			if err != nil {
				return err
			}
			return done(cmd.OutOrStdout(), dryRun, fmt.Sprintf("Published %d product(s) as version %s.", len(result.Published), result.Version))
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	cmd.Flags().StringArrayVarP(&products, "product", "p", nil, "Product to publish (repeatable, default all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be published without making changes")
	cmd.Flags().BoolVar(&force, "force", false, "Publish even when the version label is already recorded")
	cmd.Flags().BoolVar(&lock, "lock", true, "Hold the environment state lock while running")
	backend.register(cmd)

	return cmd
}

func newDeployApplyCmd() *cobra.Command {
	var (
		environment string
		products    []string
		dryRun      bool
		lock        bool
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision or update published products",
		Long: `Provision each product's published version in dependency order, or update
the existing instance in place. Each product waits for its dependencies'
outputs, which are passed in through its parameter mappings.

Examples:
  scdctl deploy apply -e dev
  scdctl deploy apply -e prod -p app --dry-run`,
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
			result, err := eng.Apply(context.Background(), engine.ApplyOptions{
				Environment: env,
				Products:    products,
				DryRun:      dryRun,
			})
			if err != nil {
				return err
			}
			return done(cmd.OutOrStdout(), dryRun, fmt.Sprintf("Applied %d product(s).", len(result.Applied)))
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	cmd.Flags().StringArrayVarP(&products, "product", "p", nil, "Product to apply (repeatable, default all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be applied without making changes")
	cmd.Flags().BoolVar(&lock, "lock", true, "Hold the environment state lock while running")
	backend.register(cmd)

	return cmd
}

func newDeployStatusCmd() *cobra.Command {
	var (
		environment string
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded state of every product",
		Long: `Show each catalog product's published version and live instance as
recorded in the environment state. Makes no remote calls.

Examples:
  scdctl deploy status -e dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openEngine(cmd, backend, false)
			if err != nil {
				return err
			}
			statuses, err := eng.Status(context.Background(), env)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s\n", env)
			if len(statuses) == 0 {
				fmt.Fprintln(out, "(no products configured)")
				return nil
			}
			fmt.Fprintf(out, "%-20s %-12s %-20s %-24s %s\n", "PRODUCT", "PHASE", "VERSION", "INSTANCE", "DEPLOYED")
			for _, s := range statuses {
				fmt.Fprintf(out, "%-20s %-12s %-20s %-24s %s\n",
					s.Product, s.Phase, orDash(s.Version), orDash(s.InstanceID), formatTime(s.DeployedAt))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	backend.register(cmd)

	return cmd
}

func newDeployTerminateCmd() *cobra.Command {
	var (
		environment string
		products    []string
		dryRun      bool
		force       bool
		lock        bool
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Terminate provisioned products",
		Long: `Terminate live product instances, dependents before their dependencies.
Published versions stay recorded so a later apply can recreate them.

Requires --force, or --dry-run to preview.

Examples:
  scdctl deploy terminate -e dev --dry-run
  scdctl deploy terminate -e dev -p app --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun && !force {
				return errors.GuardRejection("terminate")
			}
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openEngine(cmd, backend, lock)
			if err != nil {
				return err
			}
			result, err := eng.Terminate(context.Background(), engine.TerminateOptions{
				Environment: env,
				Products:    products,
				DryRun:      dryRun,
				Force:       force,
			})
			if err != nil {
				return err
			}
			return done(cmd.OutOrStdout(), dryRun, fmt.Sprintf("Terminated %d product(s).", len(result.Terminated)))
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	cmd.Flags().StringArrayVarP(&products, "product", "p", nil, "Product to terminate (repeatable, default all provisioned)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be terminated without making changes")
	cmd.Flags().BoolVar(&force, "force", false, "Confirm termination")
	cmd.Flags().BoolVar(&lock, "lock", true, "Hold the environment state lock while running")
	backend.register(cmd)

	return cmd
}

// done prints the closing line of a mutating command.
func done(w io.Writer, dryRun bool, summary string) error {
	fmt.Fprintln(w)
	if dryRun {
		fmt.Fprintln(w, "Dry run complete; no changes were made.")
		return nil
	}
	fmt.Fprintln(w, summary)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
