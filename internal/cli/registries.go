package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRegistriesCmd() *cobra.Command {
	var (
		environment string
		backend     backendFlags
	)

	cmd := &cobra.Command{
		Use:     "registries",
		Aliases: []string{"registry"},
		Short:   "List container registries and their image tags",
		Long: `List every container registry of an environment with the image tags it
holds. A registry that cannot be read is reported and the rest are still
listed.

Examples:
  scdctl registries -e dev`,
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
			registries, err := eng.Registries(context.Background(), env)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(registries) == 0 {
				fmt.Fprintln(out, "(no registries configured)")
				return nil
			}
			for _, r := range registries {
				fmt.Fprintf(out, "%s\n", r.URI)
				switch {
				case r.Err != nil:
					fmt.Fprintf(out, "  error: %v\n", r.Err)
				case len(r.Tags) == 0:
					fmt.Fprintln(out, "  (no tags)")
				default:
					fmt.Fprintf(out, "  %s\n", strings.Join(r.Tags, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment")
	backend.register(cmd)

	return cmd
}
