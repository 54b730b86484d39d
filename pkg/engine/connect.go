package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

// ConnectOptions configures a connect operation. Empty fields fall back to
// the environment's stored profile.
type ConnectOptions struct {
	Environment string
	AWSProfile  string
	Region      string
	AccountID   string

	// SSOLogin runs `aws sso login` for the profile before verifying.
	SSOLogin bool
}

// Identity is the caller identity the credentials resolve to.
type Identity struct {
	Account string
	ARN     string
	UserID  string
}

// Connect resolves the environment's profile from the options and the
// stored profile, verifies the credentials against the caller identity and
// records the profile. The caller saves the updated profiles file.
func (e *Engine) Connect(ctx context.Context, opts ConnectOptions) (catalog.Profile, *Identity, error) {
	existing, hasExisting := e.profiles.Profiles[opts.Environment]

	profile := catalog.Profile{
		AWSProfile: opts.AWSProfile,
		AWSRegion:  opts.Region,
		AccountID:  opts.AccountID,
	}
	if profile.AWSProfile == "" && hasExisting {
		profile.AWSProfile = existing.AWSProfile
	}
	if profile.AWSRegion == "" && hasExisting {
		profile.AWSRegion = existing.AWSRegion
	}
	if profile.AccountID == "" && hasExisting {
		profile.AccountID = existing.AccountID
	}
	if profile.AWSProfile == "" {
		return catalog.Profile{}, nil, errors.ConfigurationError(
			fmt.Sprintf("missing --aws-profile and no profile configured for environment %q", opts.Environment), nil)
	}
	if profile.AWSRegion == "" {
		return catalog.Profile{}, nil, errors.ConfigurationError(
			fmt.Sprintf("missing --region and no region configured for environment %q", opts.Environment), nil)
	}

	if opts.SSOLogin {
		if err := ssoLogin(ctx, profile.AWSProfile); err != nil {
			return catalog.Profile{}, nil, err
		}
	}

	ident, err := e.verify(ctx, profile)
	if err != nil {
		return catalog.Profile{}, nil, err
	}
	if profile.AccountID != "" && ident.Account != "" && profile.AccountID != ident.Account {
		return catalog.Profile{}, nil, errors.ConfigurationError(
			fmt.Sprintf("account mismatch: configured %s but caller identity returned %s", profile.AccountID, ident.Account), nil).
			WithDetail("environment", opts.Environment)
	}
	if profile.AccountID == "" {
		profile.AccountID = ident.Account
	}

	e.profiles.Profiles[opts.Environment] = profile
	e.log.Info().Str("environment", opts.Environment).Str("aws_profile", profile.AWSProfile).Str("account_id", profile.AccountID).Msg("connected")
	return profile, ident, nil
}

// Whoami verifies the stored profile of an environment and returns the
// identity its credentials resolve to.
func (e *Engine) Whoami(ctx context.Context, environment string) (catalog.Profile, *Identity, error) {
	profile, err := e.profile(environment)
	if err != nil {
		return catalog.Profile{}, nil, err
	}
	ident, err := e.verify(ctx, profile)
	if err != nil {
		return catalog.Profile{}, nil, err
	}
	if profile.AccountID != "" && ident.Account != "" && profile.AccountID != ident.Account {
		return profile, ident, errors.ConfigurationError(
			fmt.Sprintf("account mismatch: configured %s but caller identity returned %s", profile.AccountID, ident.Account), nil).
			WithDetail("environment", environment)
	}
	return profile, ident, nil
}

func (e *Engine) verify(ctx context.Context, profile catalog.Profile) (*Identity, error) {
	clients, err := e.connect(ctx, profile)
	if err != nil {
		return nil, err
	}
	out, err := clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, errors.CapabilityError("get caller identity", "profile "+profile.AWSProfile, err)
	}
	return &Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

func ssoLogin(ctx context.Context, profile string) error {
	cmd := exec.CommandContext(ctx, "aws", "sso", "login", "--profile", profile)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.ConfigurationError("`aws sso login` failed (is the AWS CLI installed?)", err).
			WithDetail("aws_profile", profile)
	}
	return nil
}
