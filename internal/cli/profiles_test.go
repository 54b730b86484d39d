package cli

import (
	"strings"
	"testing"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

func TestNewProfilesCmd(t *testing.T) {
	cmd := newProfilesCmd()

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Use] = true
	}
	for _, expected := range []string{"list", "set", "whoami"} {
		if !subcommands[expected] {
			t.Errorf("expected subcommand '%s' not found", expected)
		}
	}
	if len(cmd.Aliases) == 0 || cmd.Aliases[0] != "profile" {
		t.Error("expected alias 'profile'")
	}
}

func TestProfilesList(t *testing.T) {
	newTestProject(t)

	out, err := run(newProfilesListCmd())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "AWS_PROFILE") {
		t.Errorf("expected header, got:\n%s", out)
	}
	if !strings.Contains(out, "123456789012") {
		t.Errorf("expected dev account, got:\n%s", out)
	}
}

func TestProfilesSet(t *testing.T) {
	layout, fake := newTestProject(t)

	out, err := run(newProfilesSetCmd(), "-e", "staging", "--aws-profile", "staging-admin", "--region", "eu-west-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Profile saved.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("expected no cloud calls without --verify, got %v", fake.Calls())
	}

	profiles, err := catalog.LoadProfiles(layout.ProfilesFile())
	if err != nil {
		t.Fatal(err)
	}
	got := profiles.Profiles["staging"]
	if got.AWSProfile != "staging-admin" || got.AWSRegion != "eu-west-1" {
		t.Errorf("unexpected stored profile %+v", got)
	}
	if _, ok := profiles.Profiles["dev"]; !ok {
		t.Error("expected dev profile to be kept")
	}
}

func TestProfilesSet_RejectsInvalidAccount(t *testing.T) {
	newTestProject(t)

	_, err := run(newProfilesSetCmd(), "-e", "staging", "--aws-profile", "staging", "--region", "eu-west-1", "--account-id", "42")
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestProfilesSet_Verify(t *testing.T) {
	layout, fake := newTestProject(t)

	_, err := run(newProfilesSetCmd(), "-e", "staging", "--aws-profile", "staging", "--region", "eu-west-1", "--verify")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.Count("GetCallerIdentity") != 1 {
		t.Errorf("expected one identity call, got %d", fake.Count("GetCallerIdentity"))
	}

	profiles, err := catalog.LoadProfiles(layout.ProfilesFile())
	if err != nil {
		t.Fatal(err)
	}
	if got := profiles.Profiles["staging"].AccountID; got != "123456789012" {
		t.Errorf("expected verified account to be recorded, got %q", got)
	}
}

func TestProfilesWhoami(t *testing.T) {
	newTestProject(t)

	out, err := run(newProfilesWhoamiCmd(), "-e", "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "arn:aws:iam::123456789012:user/tester") {
		t.Errorf("expected caller ARN, got:\n%s", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "OK") {
		t.Errorf("expected OK, got:\n%s", out)
	}
}

func TestConnectCmd(t *testing.T) {
	layout, _ := newTestProject(t)

	cmd := newConnectCmd()
	for _, flagName := range []string{"environment", "aws-profile", "region", "account-id", "sso-login"} {
		if cmd.Flags().Lookup(flagName) == nil {
			t.Errorf("expected --%s flag", flagName)
		}
	}

	out, err := run(cmd, "-e", "prod", "--aws-profile", "prod", "--region", "us-east-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "AWS environment configured.") {
		t.Errorf("unexpected output:\n%s", out)
	}

	profiles, err := catalog.LoadProfiles(layout.ProfilesFile())
	if err != nil {
		t.Fatal(err)
	}
	want := catalog.Profile{AWSProfile: "prod", AWSRegion: "us-east-1", AccountID: "123456789012"}
	if got := profiles.Profiles["prod"]; got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestConnectCmd_AccountMismatch(t *testing.T) {
	layout, _ := newTestProject(t)

	_, err := run(newConnectCmd(), "-e", "prod", "--aws-profile", "prod", "--region", "us-east-1", "--account-id", "999999999999")
	if err == nil || !strings.Contains(err.Error(), "account mismatch") {
		t.Fatalf("expected account mismatch, got %v", err)
	}

	profiles, err := catalog.LoadProfiles(layout.ProfilesFile())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := profiles.Profiles["prod"]; ok {
		t.Error("expected mismatched profile not to be saved")
	}
}
