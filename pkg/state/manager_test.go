package state

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/state/backend"
	"github.com/davidthor/scdctl/pkg/state/backend/local"
	"github.com/davidthor/scdctl/pkg/state/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a test manager with a local backend
func createTestManager(t *testing.T) (Manager, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := local.NewBackend(map[string]string{"path": dir})
	require.NoError(t, err)
	return NewManager(b, Files{}), dir
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(backend.Config{
		Type:   "local",
		Config: map[string]string{"path": t.TempDir()},
	}, Files{Deploy: "custom-deploy.json"})
	require.NoError(t, err)
	assert.Equal(t, "local", m.Backend().Type())

	_, err = NewManagerFromConfig(backend.Config{Type: "invalid"}, Files{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeBackend))
}

func TestLoad_MissingDocumentsAreEmpty(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	boot, err := m.LoadBootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.BootstrapSchemaVersion, boot.SchemaVersion)
	assert.Empty(t, boot.Environments)

	env, err := m.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	assert.Nil(t, env)

	deploy, err := m.Deploy(ctx, "dev")
	require.NoError(t, err)
	assert.Empty(t, deploy.Products)
}

func TestBootstrap_RoundTrip(t *testing.T) {
	m, dir := createTestManager(t)
	ctx := context.Background()

	in := &types.BootstrapEnvironmentState{
		AccountID:      "111111111111",
		Region:         "us-east-1",
		TemplateBucket: &types.ResourceRef{Name: "sc-templates-111111111111-us-east-1", ARN: "arn:aws:s3:::sc-templates-111111111111-us-east-1"},
		ECRRepositories: map[string]types.ResourceRef{
			"app": {Name: "app", ARN: "arn:aws:ecr:us-east-1:111111111111:repository/app", URI: "111111111111.dkr.ecr.us-east-1.amazonaws.com/app"},
		},
		Portfolios: map[string]types.ResourceRef{
			"core": {ID: "port-abc", Name: "Core (dev)"},
		},
		Products: map[string]types.ResourceRef{
			"networking": {ID: "prod-123", Name: "networking-dev", ARN: "arn:aws:catalog:us-east-1:111111111111:product/prod-123"},
		},
		LaunchRole:     &types.ResourceRef{Name: "scd-launch-role-dev", ARN: "arn:aws:iam::111111111111:role/scd-launch-role-dev"},
		BootstrappedAt: ts("2024-01-31T23:59:59Z"),
	}

	require.NoError(t, m.SaveBootstrapEnvironment(ctx, "dev", in))
	assert.FileExists(t, filepath.Join(dir, ".bootstrap-state.json"))

	out, err := m.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDeploy_RoundTrip(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	in := types.NewDeployEnvironmentState()
	in.Products["networking"] = &types.ProductDeployState{
		Version:                "2024.01.31.235959",
		PublishedAt:            ts("2024-01-31T23:59:59Z"),
		PublishedCommit:        "4b825dc642cb6eb9a060e54bf8d69288fbee4904",
		PublishedHash:          "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		DeployedAt:             ts("2024-02-01T00:10:00Z"),
		ProvisionedProductID:   "pp-abc",
		ProvisionedProductName: "dev-networking",
		Outputs:                map[string]string{"VpcId": "vpc-1"},
	}
	in.Products["database"] = &types.ProductDeployState{
		Version:     "2024.01.31.235959",
		PublishedAt: ts("2024-01-31T23:59:59Z"),
		Outputs:     map[string]string{},
	}

	require.NoError(t, m.SaveDeployEnvironment(ctx, "dev", in))

	out, err := m.Deploy(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	doc, err := m.LoadDeploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DeploySchemaVersion, doc.SchemaVersion)
}

func TestSaveEnvironment_LeavesOthersUntouched(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	dev := types.NewDeployEnvironmentState()
	dev.Product("networking").Version = "v1"
	prod := types.NewDeployEnvironmentState()
	prod.Product("networking").Version = "v2"

	require.NoError(t, m.SaveDeployEnvironment(ctx, "dev", dev))
	require.NoError(t, m.SaveDeployEnvironment(ctx, "prod", prod))

	dev.Product("networking").Version = "v3"
	require.NoError(t, m.SaveDeployEnvironment(ctx, "dev", dev))

	got, err := m.Deploy(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Products["networking"].Version)

	got, err = m.Deploy(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, "v3", got.Products["networking"].Version)
}

func TestForgetEnvironment(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveBootstrapEnvironment(ctx, "dev", types.NewBootstrapEnvironmentState()))
	require.NoError(t, m.SaveBootstrapEnvironment(ctx, "prod", types.NewBootstrapEnvironmentState()))
	require.NoError(t, m.SaveDeployEnvironment(ctx, "dev", types.NewDeployEnvironmentState()))

	require.NoError(t, m.ForgetEnvironment(ctx, "dev"))
	require.NoError(t, m.ForgetEnvironment(ctx, "never-existed"))

	boot, err := m.LoadBootstrap(ctx)
	require.NoError(t, err)
	assert.NotContains(t, boot.Environments, "dev")
	assert.Contains(t, boot.Environments, "prod")

	deploy, err := m.LoadDeploy(ctx)
	require.NoError(t, err)
	assert.Empty(t, deploy.Environments)
}

func TestLoad_PartialDocumentIsNormalized(t *testing.T) {
	m, dir := createTestManager(t)
	ctx := context.Background()

	raw := `{"environments":{"dev":{"products":{"networking":{"version":"v1"}}}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deploy-state.json"), []byte(raw), 0644))

	doc, err := m.LoadDeploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DeploySchemaVersion, doc.SchemaVersion)
	assert.NotNil(t, doc.Environments["dev"].Products["networking"].Outputs)
}

func TestLoad_CorruptDocument(t *testing.T) {
	m, _ := createTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Backend().Write(ctx, ".bootstrap-state.json", bytes.NewReader([]byte("{not json"))))

	_, err := m.Bootstrap(ctx, "dev")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestLock(t *testing.T) {
	m, dir := createTestManager(t)
	ctx := context.Background()

	lock, err := m.Lock(ctx, LockScope{Environment: "dev", Operation: "deploy apply", Who: "alice"})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "locks", "dev.lock"))

	_, err = m.Lock(ctx, LockScope{Environment: "dev", Operation: "destroy"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLocked))

	other, err := m.Lock(ctx, LockScope{Environment: "prod", Operation: "sync"})
	require.NoError(t, err)
	assert.NotEmpty(t, other.Info().Who)

	require.NoError(t, lock.Unlock(ctx))
	require.NoError(t, other.Unlock(ctx))
}
