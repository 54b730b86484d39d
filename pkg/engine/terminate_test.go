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

func TestTerminate_RequiresForceOrDryRun(t *testing.T) {
	f := newFixture(t).applied(t)

	_, err := f.engine.Terminate(context.Background(), TerminateOptions{Environment: "dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGuard))
	assert.Empty(t, f.fake.Calls())
	assert.Len(t, f.fake.Instances, 3)
	assert.Empty(t, f.out.String())
}

func TestTerminate_AllLiveInstancesDependentsFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)

	result, err := f.engine.Terminate(ctx, TerminateOptions{Environment: "dev", Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "database", "networking"}, result.Terminated)
	assert.Empty(t, f.fake.Instances)

	out := f.out.String()
	assert.Less(t, strings.Index(out, "Terminating app"), strings.Index(out, "Terminating database"))
	assert.Less(t, strings.Index(out, "Terminating database"), strings.Index(out, "Terminating networking"))

	env := f.deployState(t)
	for _, name := range []string{"app", "database", "networking"} {
		ps := env.Products[name]
		assert.Equal(t, types.PhasePublished, ps.Phase(), name)
		assert.Equal(t, firstVersion, ps.Version, "the published version is kept")
		assert.Empty(t, ps.Outputs)
		assert.Nil(t, ps.DeployedAt)
	}
}

func TestTerminate_NamedProductWithoutInstanceIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).published(t)

	result, err := f.engine.Terminate(ctx, TerminateOptions{Environment: "dev", Products: []string{"networking"}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"networking"}, result.Skipped)
	assert.Empty(t, f.fake.Mutations())
}

func TestTerminate_UnknownProduct(t *testing.T) {
	f := newFixture(t).applied(t)

	_, err := f.engine.Terminate(context.Background(), TerminateOptions{Environment: "dev", Products: []string{"cache"}, Force: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGraph))
	assert.Empty(t, f.fake.Mutations())
}

func TestTerminate_ProductRemovedFromCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	delete(f.engine.catalog.Products, "app")

	result, err := f.engine.Terminate(ctx, TerminateOptions{Environment: "dev", Products: []string{"app"}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, result.Terminated)
	assert.Nil(t, f.fake.InstanceByName("dev-app"))
}

func TestTerminate_AlreadyGoneInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	delete(f.fake.Instances, f.fake.InstanceByName("dev-app").ID)

	result, err := f.engine.Terminate(ctx, TerminateOptions{Environment: "dev", Products: []string{"app"}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, result.Terminated)
	assert.Equal(t, types.PhasePublished, f.deployState(t).Products["app"].Phase())
}

func TestTerminate_DryRunMakesNoChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	bootBefore, deployBefore := f.snapshot(t)

	result, err := f.engine.Terminate(ctx, TerminateOptions{Environment: "dev", DryRun: true})
	require.NoError(t, err)
	assert.Len(t, result.Terminated, 3)

	assert.Empty(t, f.fake.Calls())
	bootAfter, deployAfter := f.snapshot(t)
	assert.Equal(t, bootBefore, bootAfter)
	assert.Equal(t, deployBefore, deployAfter)
	assert.Contains(t, f.out.String(), "[dry-run] terminate provisioned product pp-")
}

func TestTerminate_RejectsCyclicCatalog(t *testing.T) {
	f := newFixture(t).applied(t)
	networking := f.engine.catalog.Products["networking"]
	networking.Dependencies = []string{"app"}
	f.engine.catalog.Products["networking"] = networking

	_, err := f.engine.Terminate(context.Background(), TerminateOptions{Environment: "dev", Force: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGraph))
	assert.Empty(t, f.fake.Mutations())
	assert.Len(t, f.fake.Instances, 3)
}

func TestTerminate_FailureIsFatal(t *testing.T) {
	f := newFixture(t).applied(t)
	f.fake.Errors["TerminateProvisionedProduct"] = assert.AnError

	result, err := f.engine.Terminate(context.Background(), TerminateOptions{Environment: "dev", Force: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCapability))
	assert.Empty(t, result.Terminated)
	assert.Equal(t, 1, f.fake.Count("TerminateProvisionedProduct"))
}

func TestDestroy_RequiresForceOrDryRun(t *testing.T) {
	f := newFixture(t).applied(t)

	_, err := f.engine.Destroy(context.Background(), DestroyOptions{Environment: "dev"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGuard))
	assert.Empty(t, f.fake.Calls())
}

func TestDestroy_RemovesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)

	result, err := f.engine.Destroy(ctx, DestroyOptions{Environment: "dev", Force: true})
	require.NoError(t, err)
	assert.Zero(t, result.Failures)
	assert.Len(t, result.Terminated, 3)

	assert.Empty(t, f.fake.Instances)
	assert.Empty(t, f.fake.Products)
	assert.Empty(t, f.fake.Portfolios)
	assert.Empty(t, f.fake.Repositories)
	assert.Empty(t, f.fake.Buckets)
	assert.Empty(t, f.fake.Roles)

	boot, err := f.state.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	assert.Nil(t, boot)
	assert.Empty(t, f.deployState(t).Products)
	assert.Contains(t, f.out.String(), `Environment "dev" destroyed.`)
}

func TestDestroy_WithoutBootstrapState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).synced(t)
	require.NoError(t, f.state.ForgetEnvironment(ctx, "dev"))

	_, err := f.engine.Destroy(ctx, DestroyOptions{Environment: "dev", Force: true})
	require.NoError(t, err)

	// Named objects are found from configuration alone.
	assert.Empty(t, f.fake.Buckets)
	assert.Empty(t, f.fake.Roles)
	assert.Empty(t, f.fake.Repositories)
}

func TestDestroy_IsBestEffort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	f.fake.Errors["DeletePortfolio"] = assert.AnError
	f.fake.Errors["TerminateProvisionedProduct"] = assert.AnError

	result, err := f.engine.Destroy(ctx, DestroyOptions{Environment: "dev", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Failures)
	assert.Contains(t, f.out.String(), "[warn] terminate app")
	assert.Contains(t, f.out.String(), "[warn] delete portfolio Platform (dev)")
	assert.Contains(t, f.out.String(), "destroyed with 4 warning(s)")

	assert.Empty(t, f.fake.Buckets, "later steps still run")
	assert.Empty(t, f.fake.Roles)
	assert.Empty(t, f.fake.Repositories)

	boot, err := f.state.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	require.NotNil(t, boot, "failed steps stay recorded")
	assert.Empty(t, boot.Products)
	assert.Len(t, boot.Portfolios, 1)
	assert.Empty(t, boot.ECRRepositories)
	assert.Nil(t, boot.TemplateBucket)
	assert.Nil(t, boot.LaunchRole)

	env := f.deployState(t)
	assert.Len(t, env.Products, 3)
	for name, ps := range env.Products {
		assert.Equal(t, types.PhaseProvisioned, ps.Phase(), name)
	}
}

func TestDestroy_RetryFinishesFailedSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	f.fake.Errors["TerminateProvisionedProduct"] = assert.AnError
	f.fake.Errors["DeletePortfolio"] = assert.AnError

	result, err := f.engine.Destroy(ctx, DestroyOptions{Environment: "dev", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Failures)
	assert.Len(t, f.fake.Instances, 3)
	assert.Len(t, f.fake.Portfolios, 1)
	assert.Contains(t, f.out.String(), "Run destroy again")

	delete(f.fake.Errors, "TerminateProvisionedProduct")
	delete(f.fake.Errors, "DeletePortfolio")
	f.fake.ResetCalls()

	result, err = f.engine.Destroy(ctx, DestroyOptions{Environment: "dev", Force: true})
	require.NoError(t, err)
	assert.Zero(t, result.Failures)
	assert.Len(t, result.Terminated, 3)
	assert.Equal(t, 3, f.fake.Count("TerminateProvisionedProduct"))
	assert.Equal(t, 1, f.fake.Count("DeletePortfolio"))
	assert.Zero(t, f.fake.Count("DeleteProduct"), "products deleted on the first run are not retried")
	assert.Empty(t, f.fake.Instances)
	assert.Empty(t, f.fake.Portfolios)

	boot, err := f.state.Bootstrap(ctx, "dev")
	require.NoError(t, err)
	assert.Nil(t, boot)
	assert.Empty(t, f.deployState(t).Products)
}

func TestDestroy_DryRunMakesNoChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).applied(t)
	bootBefore, deployBefore := f.snapshot(t)

	_, err := f.engine.Destroy(ctx, DestroyOptions{Environment: "dev", DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, f.fake.Calls())
	bootAfter, deployAfter := f.snapshot(t)
	assert.Equal(t, bootBefore, bootAfter)
	assert.Equal(t, deployBefore, deployAfter)

	out := f.out.String()
	assert.Contains(t, out, "[dry-run] terminate provisioned product")
	assert.Contains(t, out, "[dry-run] delete product networking-dev")
	assert.Contains(t, out, "[dry-run] empty and delete s3 bucket "+testBucket)
	assert.Contains(t, out, "[dry-run] delete iam role scd-launch-role-dev")
}
