package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/project"
)

func newInitCmd() *cobra.Command {
	var (
		name   string
		sample bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new scdctl project",
		Long: `Create a project directory with skeleton .deployer/ configuration, an empty
products/ directory, a .gitignore that keeps state files out of version
control, and a git repository on branch main.

Examples:
  scdctl init --name platform
  scdctl init --name platform --sample`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := project.DirFromName(name)
			if err != nil {
				return err
			}
			layout, err := project.Init(dir, project.InitOptions{Sample: sample})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized project: %s\n", layout.Root)
			fmt.Fprintf(out, "  - %s\n", layout.DeployerDir())
			fmt.Fprintf(out, "  - %s\n", layout.ProductsDir())
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  cd %s\n", name)
			fmt.Fprintln(out, "  scdctl connect -e dev --aws-profile <profile> --region <region>")
			fmt.Fprintln(out, "  scdctl sync -e dev")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project directory to create")
	cmd.Flags().BoolVar(&sample, "sample", false, "Include a sample product")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project",
		Short: "Show the project this directory belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := project.Load(projectOverride())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project root: %s\n", layout.Root)
			for _, f := range []struct{ label, path string }{
				{"profiles", layout.ProfilesFile()},
				{"bootstrap", layout.BootstrapFile()},
				{"catalog", layout.CatalogFile()},
				{"products", layout.ProductsDir()},
			} {
				fmt.Fprintf(out, "  %-10s %s%s\n", f.label+":", f.path, missingMarker(f.path))
			}
			if commit := project.HeadCommit(layout.Root); commit != "" {
				fmt.Fprintf(out, "  %-10s %s\n", "commit:", commit)
			}
			return nil
		},
	}
}

func missingMarker(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return " (missing)"
	}
	return ""
}
