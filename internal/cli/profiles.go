package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/engine"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Short:   "Manage environment profiles",
		Long:    `List, set and verify the AWS profiles stored in .deployer/profiles.yaml.`,
	}

	cmd.AddCommand(newProfilesListCmd())
	cmd.AddCommand(newProfilesSetCmd())
	cmd.AddCommand(newProfilesWhoamiCmd())

	return cmd
}

func newProfilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured environments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ws.profiles.Profiles) == 0 {
				fmt.Fprintln(out, "(no profiles configured)")
				return nil
			}

			envs := make([]string, 0, len(ws.profiles.Profiles))
			for env := range ws.profiles.Profiles {
				envs = append(envs, env)
			}
			sort.Strings(envs)

			fmt.Fprintf(out, "%-12s %-24s %-12s %s\n", "ENV", "AWS_PROFILE", "REGION", "ACCOUNT_ID")
			for _, env := range envs {
				p := ws.profiles.Profiles[env]
				fmt.Fprintf(out, "%-12s %-24s %-12s %s\n", env, p.AWSProfile, p.AWSRegion, orDash(p.AccountID))
			}
			return nil
		},
	}
}

func newProfilesSetCmd() *cobra.Command {
	var (
		environment string
		awsProfile  string
		region      string
		accountID   string
		verify      bool
		ssoLogin    bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the profile of an environment",
		Long: `Store the AWS profile, region and account of an environment. With
--verify the credentials are checked against the caller identity first,
the same way connect does.

Examples:
  scdctl profiles set -e dev --aws-profile dev-admin --region us-east-1
  scdctl profiles set -e prod --aws-profile prod --region us-west-2 --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}

			if verify || ssoLogin {
				ws, eng, err := openProfileEngine(cmd)
				if err != nil {
					return err
				}
				if _, _, err := eng.Connect(context.Background(), engine.ConnectOptions{
					Environment: env,
					AWSProfile:  awsProfile,
					Region:      region,
					AccountID:   accountID,
					SSOLogin:    ssoLogin,
				}); err != nil {
					return err
				}
				if err := ws.saveProfiles(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Profile saved.")
				return nil
			}

			ws, err := loadWorkspace()
			if err != nil {
				return err
			}
			profile := catalog.Profile{AWSProfile: awsProfile, AWSRegion: region, AccountID: accountID}
			if err := profile.Validate(); err != nil {
				return err
			}
			ws.profiles.Profiles[env] = profile
			if err := ws.saveProfiles(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile saved.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment to configure")
	cmd.Flags().StringVar(&awsProfile, "aws-profile", "", "AWS named profile")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&accountID, "account-id", "", "AWS account ID")
	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the credentials before saving")
	cmd.Flags().BoolVar(&ssoLogin, "sso-login", false, "Run `aws sso login` for the profile first (implies --verify)")

	return cmd
}

func newProfilesWhoamiCmd() *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity an environment's credentials resolve to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment(environment)
			if err != nil {
				return err
			}
			_, eng, err := openProfileEngine(cmd)
			if err != nil {
				return err
			}
			profile, ident, err := eng.Whoami(context.Background(), env)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Environment: %s (%s, %s)\n", env, profile.AWSProfile, profile.AWSRegion)
			fmt.Fprintf(out, "  Account: %s\n", ident.Account)
			fmt.Fprintf(out, "  ARN:     %s\n", ident.ARN)
			fmt.Fprintf(out, "  UserID:  %s\n", ident.UserID)
			fmt.Fprintln(out, "OK")
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment to check")

	return cmd
}
