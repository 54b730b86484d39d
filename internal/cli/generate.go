package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/ciworkflow"
	"github.com/davidthor/scdctl/pkg/errors"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate files derived from the project",
	}

	cmd.AddCommand(newGenerateCICmd())

	return cmd
}

func newGenerateCICmd() *cobra.Command {
	var (
		provider       string
		environment    string
		output         string
		teardownOutput string
		installVersion string
		backend        backendFlags
	)

	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Generate a CI pipeline that deploys an environment",
		Long: `Generate a deploy pipeline and a teardown pipeline for one environment.

The deploy pipeline runs sync and publish, then applies each product in its
own job in dependency order. The teardown pipeline runs destroy --force and
is only triggered by hand. Both recreate the environment's AWS profile from
AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY secrets.

Pass --backend and --backend-config to keep state in a remote backend; with
the local backend the whole deploy runs in a single job.

Examples:
  scdctl generate ci --provider github-actions -e prod --backend s3 \
    --backend-config bucket=my-state --backend-config region=us-east-1
  scdctl generate ci --provider gitlab-ci -e dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			gen, err := ciworkflow.NewGenerator(ciworkflow.Provider(provider))
			if err != nil {
				return err
			}

			ws, err := loadWorkspace()
			if err != nil {
				return err
			}
			profile, ok := ws.profiles.Profiles[env]
			if !ok {
				return errors.ConfigurationError(fmt.Sprintf("no profile for environment %q (run `scdctl connect -e %s`)", env, env), nil)
			}

			config := make(map[string]string)
			for _, c := range backend.backendConfig {
				parts := strings.SplitN(c, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid --backend-config %q (expected key=value)", c)
				}
				config[parts[0]] = parts[1]
			}

			wf, err := ciworkflow.Build(ws.catalog, ciworkflow.Options{
				Environment:    env,
				Profile:        profile,
				Backend:        backend.backendType,
				BackendConfig:  config,
				InstallVersion: installVersion,
			})
			if err != nil {
				return err
			}

			deploy, err := gen.Generate(wf)
			if err != nil {
				return err
			}
			teardown, err := gen.GenerateTeardown(wf)
			if err != nil {
				return err
			}

			if output == "" {
				output = gen.DefaultOutputPath()
			}
			if teardownOutput == "" {
				teardownOutput = gen.DefaultTeardownOutputPath()
			}
			if err := writeProjectFile(cmd, ws.layout.Root, output, deploy); err != nil {
				return err
			}
			if teardown != nil {
				if err := writeProjectFile(cmd, ws.layout.Root, teardownOutput, teardown); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", string(ciworkflow.ProviderGitHubActions),
		fmt.Sprintf("CI provider (%s)", strings.Join(ciworkflow.ValidProviders(), ", ")))
	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment the pipeline deploys")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Deploy pipeline path (default per provider)")
	cmd.Flags().StringVar(&teardownOutput, "teardown-output", "", "Teardown pipeline path (default per provider)")
	cmd.Flags().StringVar(&installVersion, "install-version", "latest", "scdctl version the pipeline installs")
	backend.register(cmd)

	return cmd
}

// writeProjectFile writes data to path, resolved against the project root
// when relative.
func writeProjectFile(cmd *cobra.Command, root, path string, data []byte) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return writeOutput(cmd, path, data)
}
