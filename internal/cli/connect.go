package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/engine"
)

func newConnectCmd() *cobra.Command {
	var (
		environment string
		awsProfile  string
		region      string
		accountID   string
		ssoLogin    bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Configure and verify the AWS account of an environment",
		Long: `Record which AWS profile and region an environment deploys to, and verify
the credentials resolve to the expected account. Flags left empty keep the
values already stored for the environment. When no account ID is given,
the verified caller's account is recorded.

Examples:
  scdctl connect -e dev --aws-profile dev-admin --region us-east-1
  scdctl connect -e prod --aws-profile prod --region us-west-2 --account-id 123456789012 --sso-login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			ws, eng, err := openProfileEngine(cmd)
			if err != nil {
				return err
			}

			profile, ident, err := eng.Connect(context.Background(), engine.ConnectOptions{
				Environment: env,
				AWSProfile:  awsProfile,
				Region:      region,
				AccountID:   accountID,
				SSOLogin:    ssoLogin,
			})
			if err != nil {
				return err
			}
			if err := ws.saveProfiles(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Environment: %s\n", env)
			fmt.Fprintf(out, "  AWS profile: %s\n", profile.AWSProfile)
			fmt.Fprintf(out, "  Region:      %s\n", profile.AWSRegion)
			fmt.Fprintf(out, "  Account:     %s\n", profile.AccountID)
			fmt.Fprintf(out, "  Caller:      %s\n", ident.ARN)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "AWS environment configured.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment to configure")
	cmd.Flags().StringVar(&awsProfile, "aws-profile", "", "AWS named profile")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&accountID, "account-id", "", "Expected AWS account ID")
	cmd.Flags().BoolVar(&ssoLogin, "sso-login", false, "Run `aws sso login` for the profile first")

	return cmd
}
