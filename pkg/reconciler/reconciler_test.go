package reconciler

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/cloud/cloudtest"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state"
	"github.com/davidthor/scdctl/pkg/state/backend/local"
)

const testAccount = "123456789012"

func testConfig() SyncOptions {
	return SyncOptions{
		Bootstrap: &catalog.BootstrapFile{
			TemplateBucket: catalog.TemplateBucket{NamePrefix: "sc-templates", Encryption: "AES256"},
			ECRRepositories: []catalog.ECRRepository{
				{Name: "api", ImageTagMutability: "IMMUTABLE"},
			},
			Portfolios: map[string]catalog.PortfolioSpec{
				"platform": {
					DisplayName:  "Platform",
					ProviderName: "Platform Team",
					Principals:   []string{"arn:aws:iam::${account_id}:role/Admin"},
					Tags:         map[string]string{"Team": "infra"},
				},
			},
		},
		Catalog: &catalog.CatalogFile{
			Products: map[string]catalog.ProductSpec{
				"networking": {Path: "networking", Portfolio: "platform", Outputs: []string{"VpcId"}},
				"database":   {Path: "database", Portfolio: "platform", Dependencies: []string{"networking"}},
			},
		},
	}
}

func newReconciler(t *testing.T, fake *cloudtest.Fake, dryRun bool) (*Reconciler, state.Manager, *bytes.Buffer) {
	t.Helper()
	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	mgr := state.NewManager(b, state.Files{})

	var out bytes.Buffer
	r := New(Options{
		Target:  Target{Environment: "dev", AccountID: testAccount, Region: "us-west-2"},
		Clients: fake.Clients(),
		State:   mgr,
		Output:  &out,
		Logger:  zerolog.Nop(),
		DryRun:  dryRun,
	})
	return r, mgr, &out
}

func TestSync_CreatesEverything(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New(testAccount, "us-west-2")
	r, mgr, _ := newReconciler(t, fake, false)

	st, err := r.Sync(ctx, testConfig())
	require.NoError(t, err)

	bucketName := "sc-templates-123456789012-us-west-2"
	require.Contains(t, fake.Buckets, bucketName)
	bucket := fake.Buckets[bucketName]
	assert.Equal(t, "us-west-2", bucket.Region)
	assert.True(t, bucket.Versioning)
	assert.Equal(t, "AES256", bucket.Encryption)
	assert.Equal(t, map[string]string{cloud.TagManagedBy: "scd", cloud.TagEnvironment: "dev"}, bucket.Tags)
	assert.Equal(t, bucketName, st.TemplateBucket.Name)
	assert.Equal(t, "arn:aws:s3:::"+bucketName, st.TemplateBucket.ARN)

	require.Contains(t, fake.Repositories, "api")
	assert.True(t, fake.Repositories["api"].ScanOnPush)
	assert.Equal(t, "123456789012.dkr.ecr.us-west-2.amazonaws.com/api", st.ECRRepositories["api"].URI)

	portfolio := st.Portfolios["platform"]
	assert.Equal(t, "Platform (dev)", portfolio.Name)
	require.Contains(t, fake.Portfolios, portfolio.ID)
	assert.Equal(t, []string{"arn:aws:iam::123456789012:role/Admin"}, fake.Portfolios[portfolio.ID].Principals)
	assert.Equal(t, "infra", fake.Portfolios[portfolio.ID].Tags["Team"])

	role := fake.Roles["scd-launch-role-dev"]
	require.NotNil(t, role)
	assert.Contains(t, role.Trust, "servicecatalog.amazonaws.com")
	assert.ElementsMatch(t, LaunchPolicies, role.Policies)
	assert.Equal(t, role.ARN, st.LaunchRole.ARN)

	for _, key := range []string{"networking", "database"} {
		ref := st.Products[key]
		assert.Equal(t, key+"-dev", ref.Name)
		p := fake.Products[ref.ID]
		require.NotNil(t, p, key)
		assert.Equal(t, key, p.Tags[ProductKeyTag])
		require.Len(t, p.Artifacts, 1)
		assert.Equal(t, "v0.0.0-placeholder", p.Artifacts[0].Name)
		assert.Equal(t, "https://"+bucketName+".s3.us-west-2.amazonaws.com/_placeholders/"+key+"-dev/placeholder.yaml", p.Artifacts[0].TemplateURL)
		assert.Equal(t, []string{portfolio.ID}, p.Portfolios)
		require.Len(t, p.Constraints, 1)
		assert.Equal(t, "LAUNCH", p.Constraints[0].Type)
		assert.JSONEq(t, `{"RoleArn":"`+role.ARN+`"}`, p.Constraints[0].Parameters)
	}
	assert.Contains(t, bucket.Objects, "_placeholders/networking-dev/placeholder.yaml")

	saved, err := mgr.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, st.Products, saved.Products)
	assert.NotNil(t, saved.BootstrappedAt)
}

func TestSync_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New(testAccount, "us-west-2")
	r, _, _ := newReconciler(t, fake, false)

	first, err := r.Sync(ctx, testConfig())
	require.NoError(t, err)

	second, err := r.Sync(ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, first.Products, second.Products)
	assert.Equal(t, first.Portfolios, second.Portfolios)
	assert.Len(t, fake.Products, 2)
	assert.Len(t, fake.Portfolios, 1)
	assert.Equal(t, 1, fake.Count("CreateBucket"))
	assert.Equal(t, 2, fake.Count("CreateProduct"))
	assert.Equal(t, 1, fake.Count("CreateRole"))
	for _, p := range fake.Products {
		assert.Len(t, p.Constraints, 1, "existing launch constraint is kept")
	}
}

func TestSync_FindsPortfolioAfterStateLoss(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New(testAccount, "us-west-2")

	r1, _, _ := newReconciler(t, fake, false)
	first, err := r1.Sync(ctx, testConfig())
	require.NoError(t, err)

	// A fresh state directory simulates a lost state file.
	r2, _, _ := newReconciler(t, fake, false)
	second, err := r2.Sync(ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, first.Portfolios["platform"].ID, second.Portfolios["platform"].ID)
	assert.Equal(t, 1, fake.Count("CreatePortfolio"))
}

func TestSync_DryRunMakesNoChanges(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New(testAccount, "us-west-2")
	r, mgr, out := newReconciler(t, fake, true)

	st, err := r.Sync(ctx, testConfig())
	require.NoError(t, err)

	assert.Empty(t, fake.Mutations())
	assert.Equal(t, DryRunProductID, st.Products["networking"].ID)
	assert.Equal(t, DryRunPortfolioID, st.Portfolios["platform"].ID)
	assert.Equal(t, "arn:aws:iam::123456789012:role/scd-launch-role-dev", st.LaunchRole.ARN)
	assert.Equal(t, "arn:aws:ecr:us-west-2:123456789012:repository/api", st.ECRRepositories["api"].ARN)
	assert.Contains(t, out.String(), "[dry-run] create s3 bucket sc-templates-123456789012-us-west-2")
	assert.Contains(t, out.String(), "[dry-run] create product networking-dev")
	assert.Contains(t, out.String(), "[dry-run] create launch constraint for networking-dev")

	saved, err := mgr.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	assert.Nil(t, saved, "dry run must not write state")
}

func TestSync_UnknownPortfolioFailsBeforeRemoteCalls(t *testing.T) {
	fake := cloudtest.New(testAccount, "us-west-2")
	r, _, _ := newReconciler(t, fake, false)

	cfg := testConfig()
	cfg.Catalog.Products["api"] = catalog.ProductSpec{Path: "api", Portfolio: "apps"}

	_, err := r.Sync(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), `unknown portfolio "apps"`)
	assert.Empty(t, fake.Calls())
}

func TestSync_ResolvesMissingAccountID(t *testing.T) {
	fake := cloudtest.New(testAccount, "us-east-1")
	r := New(Options{
		Target:  Target{Environment: "dev", Region: "us-east-1"},
		Clients: fake.Clients(),
		Logger:  zerolog.Nop(),
	})

	st, err := r.Sync(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, testAccount, st.AccountID)
	assert.Equal(t, testAccount, r.Target().AccountID)
	assert.Equal(t, "us-east-1", fake.Buckets["sc-templates-123456789012-us-east-1"].Region)
}

func TestSync_CapabilityErrorIsFatal(t *testing.T) {
	fake := cloudtest.New(testAccount, "us-west-2")
	fake.Errors["CreateRole"] = assert.AnError
	r, mgr, _ := newReconciler(t, fake, false)

	_, err := r.Sync(context.Background(), testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCapability))
	assert.Contains(t, err.Error(), "scd-launch-role-dev")
	assert.Zero(t, fake.Count("CreateProduct"))

	saved, err := mgr.Bootstrap(context.Background(), "dev")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSync_BestEffortSteps(t *testing.T) {
	fake := cloudtest.New(testAccount, "us-west-2")
	fake.Errors["PutBucketTagging"] = assert.AnError
	fake.Errors["AssociatePrincipalWithPortfolio"] = assert.AnError
	r, _, out := newReconciler(t, fake, false)

	_, err := r.Sync(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[warn] tag s3 bucket")
	assert.Contains(t, out.String(), "[warn] associate principal")
}
