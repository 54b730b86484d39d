package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/state/types"
)

func TestApply_ProvisionsInDependencyOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)

	result, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, []string{"networking", "database", "app"}, result.Order)
	require.Len(t, result.Applied, 3)
	assert.Equal(t, 3, f.fake.Count("ProvisionProduct"))

	out := f.out.String()
	assert.Less(t, strings.Index(out, "Applying networking"), strings.Index(out, "Applying database"))
	assert.Less(t, strings.Index(out, "Applying database"), strings.Index(out, "Applying app"))
	assert.Contains(t, out, "Applying networking (version "+firstVersion+")")

	env := f.deployState(t)
	for _, name := range []string{"networking", "database", "app"} {
		ps, ok := env.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, types.PhaseProvisioned, ps.Phase(), name)
		assert.Equal(t, "dev-"+name, ps.ProvisionedProductName)
		assert.Equal(t, "0a1b2c3", ps.DeployedCommit)
		require.NotNil(t, ps.DeployedAt)
		assert.NotContains(t, ps.Outputs, StackARNOutput)

		inst := f.fake.InstanceByName("dev-" + name)
		require.NotNil(t, inst, name)
		assert.Equal(t, inst.ID, ps.ProvisionedProductID)
		assert.Equal(t, "dev", inst.Parameters["Environment"])
	}

	assert.Equal(t, map[string]string{"VpcId": "vpc-123"}, env.Products["networking"].Outputs)
	assert.Equal(t, "vpc-123", f.fake.InstanceByName("dev-database").Parameters["VpcId"])
	assert.Equal(t, "db.internal:5432", f.fake.InstanceByName("dev-app").Parameters["DbEndpoint"])
}

func TestApply_UsesPublishedArtifact(t *testing.T) {
	f := newFixture(t).published(t)

	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)

	product := f.fake.ProductByName("networking-dev")
	inst := f.fake.InstanceByName("dev-networking")
	require.NotNil(t, inst)
	assert.Equal(t, product.Artifacts[1].ID, inst.ArtifactID, "the placeholder artifact is never provisioned")
}

func TestApply_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	before := f.deployState(t)

	result, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev"})
	require.NoError(t, err)

	assert.Zero(t, f.fake.Count("ProvisionProduct"))
	assert.Equal(t, 3, f.fake.Count("UpdateProvisionedProduct"))
	assert.Len(t, f.fake.Instances, 3)
	for _, applied := range result.Applied {
		assert.True(t, applied.Updated, applied.Product)
		assert.Equal(t, before.Products[applied.Product].ProvisionedProductID, applied.InstanceID)
		assert.Equal(t, 1, f.fake.Instances[applied.InstanceID].Updates)
	}
}

func TestApply_RecoversUnrecordedInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)

	_, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)
	instanceID := f.fake.InstanceByName("dev-networking").ID

	// Simulate a run that provisioned but crashed before saving.
	env := f.deployState(t)
	env.Product("networking").ClearInstance()
	require.NoError(t, f.state.SaveDeployEnvironment(ctx, "dev", env))
	f.reset()

	_, err = f.engine.Apply(ctx, ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)
	assert.Zero(t, f.fake.Count("ProvisionProduct"))
	assert.Equal(t, 1, f.fake.Count("UpdateProvisionedProduct"))
	assert.Contains(t, f.out.String(), "[recovered] dev-networking")

	ps, _ := f.deployState(t).Lookup("networking")
	assert.Equal(t, instanceID, ps.ProvisionedProductID)
}

func TestApply_DryRunMakesNoChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)
	bootBefore, deployBefore := f.snapshot(t)

	result, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"networking", "database", "app"}, result.Order)
	assert.Empty(t, result.Applied)

	assert.Empty(t, f.fake.Calls())
	bootAfter, deployAfter := f.snapshot(t)
	assert.Equal(t, bootBefore, bootAfter)
	assert.Equal(t, deployBefore, deployAfter)
	assert.Contains(t, f.out.String(), "[dry-run] provision dev-networking")
	assert.Contains(t, f.out.String(), "[dry-run]   Environment=dev")
}

func TestApply_DryRunOfExistingInstance(t *testing.T) {
	f := newFixture(t).applied(t)

	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev", Products: []string{"database"}, DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, f.fake.Calls())
	assert.Contains(t, f.out.String(), "[dry-run] update provisioned product pp-")
	assert.Contains(t, f.out.String(), "[dry-run]   VpcId=vpc-123")
}

func TestApply_UndeployedDependencyFailsBeforeRemoteCalls(t *testing.T) {
	f := newFixture(t).published(t)

	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev", Products: []string{"database"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), `depends on "networking"`)
	assert.Empty(t, f.fake.Calls())
}

func TestApply_UnpublishedProductFailsBeforeRemoteCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).synced(t)

	_, err := f.engine.Publish(ctx, PublishOptions{Environment: "dev", Products: []string{"networking", "database"}})
	require.NoError(t, err)
	f.reset()

	_, err = f.engine.Apply(ctx, ApplyOptions{Environment: "dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), `product "app" not published yet`)
	assert.Empty(t, f.fake.Calls(), "nothing is provisioned when the batch cannot complete")
}

func TestApply_SavesEachProductAsItCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)
	delete(f.fake.Outputs, "dev-networking")

	_, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), `missing output "VpcId"`)

	env := f.deployState(t)
	assert.Equal(t, types.PhaseProvisioned, env.Products["networking"].Phase())
	assert.Equal(t, types.PhasePublished, env.Products["database"].Phase())
	assert.Equal(t, 1, f.fake.Count("ProvisionProduct"))
}

func TestApply_FailedRecordIsFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)
	f.fake.RecordStatuses = []string{"IN_PROGRESS", "FAILED"}

	_, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCapability))
	assert.Contains(t, err.Error(), "StackFailed")
	assert.Equal(t, 1, f.fake.Count("ProvisionProduct"), "the batch stops at the first failure")
	assert.Equal(t, types.PhasePublished, f.deployState(t).Products["networking"].Phase())
}

func TestApply_Timeout(t *testing.T) {
	f := newFixture(t).published(t)
	f.fake.RecordStatuses = []string{"IN_PROGRESS"}

	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))
	assert.Equal(t, types.PhasePublished, f.deployState(t).Products["networking"].Phase())
}

func TestApply_MissingLaunchPath(t *testing.T) {
	f := newFixture(t).published(t)
	f.fake.ProductByName("networking-dev").Portfolios = nil

	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), "no launch paths found")
	assert.Zero(t, f.fake.Count("ProvisionProduct"))
}

func TestApply_MissingArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)

	env := f.deployState(t)
	env.Product("networking").Version = "1999.01.01.000000"
	require.NoError(t, f.state.SaveDeployEnvironment(ctx, "dev", env))

	_, err := f.engine.Apply(ctx, ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
	assert.Contains(t, err.Error(), "provisioning artifact not found")
}

func TestApply_OutputReadFailureIsReported(t *testing.T) {
	f := newFixture(t).published(t)
	f.fake.Errors["GetProvisionedProductOutputs"] = assert.AnError

	_, err := f.engine.Apply(context.Background(), ApplyOptions{Environment: "dev", Products: []string{"networking"}})
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "[warn] read outputs of dev-networking")

	ps, _ := f.deployState(t).Lookup("networking")
	assert.Equal(t, types.PhaseProvisioned, ps.Phase(), "the instance is recorded so a retry updates it")
}
