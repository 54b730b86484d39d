package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/cloud/cloudtest"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state"
	"github.com/davidthor/scdctl/pkg/state/backend/local"
	"github.com/davidthor/scdctl/pkg/state/types"
)

const (
	testAccount = "123456789012"
	testRegion  = "us-west-2"
	testBucket  = "sc-templates-123456789012-us-west-2"
)

var templates = map[string]string{
	"networking": "Resources:\n  Vpc:\n    Type: AWS::EC2::VPC\n",
	"database":   "Parameters:\n  VpcId:\n    Type: String\n",
	"app":        "Parameters:\n  DbEndpoint:\n    Type: String\n",
}

func testCatalog() *catalog.CatalogFile {
	return &catalog.CatalogFile{
		Settings: catalog.CatalogSettings{VersionFormat: catalog.DefaultVersionFormat},
		Products: map[string]catalog.ProductSpec{
			"networking": {
				Path:      "networking",
				Portfolio: "platform",
				Outputs:   []string{"VpcId"},
			},
			"database": {
				Path:             "database",
				Portfolio:        "platform",
				Dependencies:     []string{"networking"},
				ParameterMapping: map[string]string{"VpcId": "networking.VpcId"},
				Outputs:          []string{"Endpoint"},
			},
			"app": {
				Path:             "app",
				Portfolio:        "platform",
				ECRRepository:    "app",
				Dependencies:     []string{"database"},
				ParameterMapping: map[string]string{"DbEndpoint": "database.Endpoint"},
			},
		},
	}
}

func testBootstrap() *catalog.BootstrapFile {
	return &catalog.BootstrapFile{
		TemplateBucket:  catalog.TemplateBucket{NamePrefix: catalog.DefaultBucketPrefix, Encryption: catalog.DefaultEncryption},
		ECRRepositories: []catalog.ECRRepository{{Name: "app", ImageTagMutability: catalog.DefaultTagMutability}},
		Portfolios: map[string]catalog.PortfolioSpec{
			"platform": {
				DisplayName:  "Platform",
				ProviderName: catalog.DefaultProviderName,
				Principals:   []string{"arn:aws:iam::${account_id}:role/Developer"},
			},
		},
	}
}

type fixture struct {
	fake   *cloudtest.Fake
	engine *Engine
	state  state.Manager
	out    *bytes.Buffer
	clock  time.Time
}

// newFixture returns an engine over an empty fake account. The clock is
// fixed so version labels are predictable; tick advances it.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)

	productsDir := t.TempDir()
	for name, body := range templates {
		require.NoError(t, os.MkdirAll(filepath.Join(productsDir, name), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(productsDir, name, TemplateFile), []byte(body), 0644))
	}

	f := &fixture{
		fake:  cloudtest.New(testAccount, testRegion),
		state: state.NewManager(b, state.Files{}),
		out:   &bytes.Buffer{},
		clock: time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}
	f.fake.Outputs["dev-networking"] = map[string]string{"VpcId": "vpc-123"}
	f.fake.Outputs["dev-database"] = map[string]string{"Endpoint": "db.internal:5432"}

	f.engine = New(Options{
		State:     f.state,
		Catalog:   testCatalog(),
		Bootstrap: testBootstrap(),
		Profiles: &catalog.ProfilesFile{Profiles: map[string]catalog.Profile{
			"dev": {AWSProfile: "dev", AWSRegion: testRegion, AccountID: testAccount},
		}},
		Connect: func(ctx context.Context, profile catalog.Profile) (*cloud.Clients, error) {
			return f.fake.Clients(), nil
		},
		ProductsDir:  productsDir,
		Commit:       "0a1b2c3",
		Output:       f.out,
		Logger:       zerolog.Nop(),
		PollInterval: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
		Lock:         true,
		Now:          func() time.Time { return f.clock },
	})
	return f
}

func (f *fixture) tick() {
	f.clock = f.clock.Add(time.Second)
}

// synced runs a real sync against the fake and forgets the calls it made.
func (f *fixture) synced(t *testing.T) *fixture {
	t.Helper()
	_, err := f.engine.Sync(context.Background(), SyncOptions{Environment: "dev"})
	require.NoError(t, err)
	f.reset()
	return f
}

// published syncs, then publishes every product.
func (f *fixture) published(t *testing.T) *fixture {
	t.Helper()
	f.synced(t)
	_, err := f.engine.Publish(context.Background(), PublishOptions{Environment: "dev"})
	require.NoError(t, err)
	f.tick()
	f.reset()
	return f
}

// applied syncs, publishes and applies every product.
func (f *fixture) applied(t *testing.T) *fixture {
	t.Helper()
	f.published(t)
	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev"})
	require.NoError(t, err)
	f.reset()
	return f
}

func (f *fixture) reset() {
	f.fake.ResetCalls()
	f.out.Reset()
}

func (f *fixture) deployState(t *testing.T) *types.DeployEnvironmentState {
	t.Helper()
	env, err := f.state.Deploy(context.Background(), "dev")
	require.NoError(t, err)
	return env
}

// snapshot returns both state documents for before/after comparisons.
func (f *fixture) snapshot(t *testing.T) (*types.BootstrapState, *types.DeployState) {
	t.Helper()
	boot, err := f.state.LoadBootstrap(context.Background())
	require.NoError(t, err)
	deploy, err := f.state.LoadDeploy(context.Background())
	require.NoError(t, err)
	return boot, deploy
}

func TestNew_Defaults(t *testing.T) {
	e := New(Options{})
	assert.Equal(t, DefaultPollInterval, e.pollInterval)
	assert.Equal(t, DefaultPollTimeout, e.pollTimeout)
	assert.NotNil(t, e.out)
	assert.NotNil(t, e.now)
	assert.NotNil(t, e.connect)
	assert.NotNil(t, e.profiles.Profiles)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.engine.Validate(ctx, "dev")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), "not bootstrapped/synced")

	f.synced(t)
	assert.NoError(t, f.engine.Validate(ctx, "dev"))
	assert.Empty(t, f.fake.Calls(), "validation makes no remote calls")
}

func TestValidate_MissingTemplateBucket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.state.SaveBootstrapEnvironment(ctx, "dev", types.NewBootstrapEnvironmentState()))

	err := f.engine.Validate(ctx, "dev")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), "missing template bucket")
}

func TestValidate_GraphErrorsComeFirst(t *testing.T) {
	f := newFixture(t)
	cat := testCatalog()
	spec := cat.Products["networking"]
	spec.Dependencies = []string{"app"}
	cat.Products["networking"] = spec
	f.engine.catalog = cat

	err := f.engine.Validate(context.Background(), "dev")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGraph))
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)

	steps, err := f.engine.Plan(ctx, "dev", nil)
	require.NoError(t, err)

	var order []string
	for _, s := range steps {
		order = append(order, s.Product)
		assert.Equal(t, types.PhasePublished, s.Phase)
		assert.Equal(t, "2024.01.31.235959", s.Version)
		assert.Equal(t, "provision", s.Action())
	}
	assert.Equal(t, []string{"networking", "database", "app"}, order)
}

func TestPlan_Subset(t *testing.T) {
	f := newFixture(t)

	steps, err := f.engine.Plan(context.Background(), "dev", []string{"database", "networking"})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "networking", steps[0].Product)
	assert.Equal(t, "database", steps[1].Product)
	assert.Equal(t, "blocked: not published", steps[1].Action())
}

func TestPlan_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Plan(context.Background(), "dev", []string{"cache"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGraph))
	assert.Contains(t, err.Error(), `unknown product "cache"`)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).synced(t)

	_, err := f.engine.Publish(ctx, PublishOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)
	f.reset()

	statuses, err := f.engine.Status(ctx, "dev")
	require.NoError(t, err)
	assert.Empty(t, f.fake.Calls())

	byName := make(map[string]ProductStatus)
	for _, s := range statuses {
		byName[s.Product] = s
	}
	require.Len(t, byName, 3)
	assert.Equal(t, types.PhaseUnpublished, byName["app"].Phase)
	assert.Equal(t, types.PhaseProvisioned, byName["networking"].Phase)
	assert.NotEmpty(t, byName["networking"].InstanceID)
	assert.NotNil(t, byName["networking"].DeployedAt)
	assert.Equal(t, "vpc-123", byName["networking"].Outputs["VpcId"])
}

func TestSync_RecordsBootstrapState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.engine.Sync(ctx, SyncOptions{Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, testBucket, st.BucketName())
	assert.Len(t, st.Products, 3)

	saved, err := f.state.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, st.Products, saved.Products)
}

func TestSync_UnknownEnvironment(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Sync(context.Background(), SyncOptions{Environment: "prod"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "scdctl connect -e prod")
	assert.Empty(t, f.fake.Calls())
}

func TestLock_HeldLockRejectsMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).synced(t)

	held, err := f.state.Lock(ctx, state.LockScope{Environment: "dev", Operation: "apply", Who: "someone@elsewhere"})
	require.NoError(t, err)
	defer held.Unlock(ctx)

	_, err = f.engine.Publish(ctx, PublishOptions{Environment: "dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLocked))
	assert.Empty(t, f.fake.Mutations())

	_, err = f.engine.Publish(ctx, PublishOptions{Environment: "dev", DryRun: true})
	assert.NoError(t, err, "dry runs do not take the lock")
}

func TestLock_ReleasedAfterOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).synced(t)

	_, err := f.engine.Publish(ctx, PublishOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)

	lock, err := f.state.Lock(ctx, state.LockScope{Environment: "dev", Operation: "test"})
	require.NoError(t, err)
	assert.NoError(t, lock.Unlock(ctx))
}
