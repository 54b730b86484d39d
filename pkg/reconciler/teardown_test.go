package reconciler

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/scdctl/pkg/cloud/cloudtest"
	"github.com/davidthor/scdctl/pkg/errors"
)

func syncedFake(t *testing.T) (*cloudtest.Fake, *Reconciler, *bytes.Buffer) {
	t.Helper()
	fake := cloudtest.New(testAccount, "us-west-2")
	r, _, out := newReconciler(t, fake, false)
	_, err := r.Sync(context.Background(), testConfig())
	require.NoError(t, err)
	fake.ResetCalls()
	out.Reset()
	return fake, r, out
}

func TestTeardown_RemovesEverything(t *testing.T) {
	ctx := context.Background()
	fake, r, _ := syncedFake(t)

	for _, p := range fake.Products {
		require.NoError(t, r.DeleteProduct(ctx, p.ID, p.Name))
	}
	for _, p := range fake.Portfolios {
		require.NoError(t, r.DeletePortfolio(ctx, p.ID, p.DisplayName))
	}
	require.NoError(t, r.DeleteRepository(ctx, "api"))
	require.NoError(t, r.DeleteBucket(ctx, "sc-templates-123456789012-us-west-2"))
	require.NoError(t, r.DeleteRole(ctx, "scd-launch-role-dev"))

	assert.Empty(t, fake.Products)
	assert.Empty(t, fake.Portfolios)
	assert.Empty(t, fake.Repositories)
	assert.Empty(t, fake.Buckets)
	assert.Empty(t, fake.Roles)
}

func TestTeardown_AlreadyDeletedIsNotAnError(t *testing.T) {
	ctx := context.Background()
	fake := cloudtest.New(testAccount, "us-west-2")
	r, _, _ := newReconciler(t, fake, false)

	assert.NoError(t, r.DeleteProduct(ctx, "prod-missing", "gone-dev"))
	assert.NoError(t, r.DeletePortfolio(ctx, "port-missing", "Gone (dev)"))
	assert.NoError(t, r.DeleteRepository(ctx, "gone"))
	assert.NoError(t, r.DeleteBucket(ctx, "gone-bucket"))
	assert.NoError(t, r.DeleteRole(ctx, "gone-role"))
}

func TestTeardown_PreparatoryStepsAreBestEffort(t *testing.T) {
	ctx := context.Background()
	fake, r, out := syncedFake(t)
	fake.Errors["DetachRolePolicy"] = assert.AnError

	err := r.DeleteRole(ctx, "scd-launch-role-dev")
	require.Error(t, err, "role with attached policies cannot be deleted")
	assert.True(t, errors.Is(err, errors.ErrCodeCapability))
	assert.Contains(t, out.String(), "[warn] detach")
	assert.Equal(t, 1, fake.Count("DeleteRole"), "final delete is still attempted")
}

func TestTeardown_DryRun(t *testing.T) {
	ctx := context.Background()
	fake, _, _ := syncedFake(t)
	r, _, out := newReconciler(t, fake, true)

	require.NoError(t, r.DeleteProduct(ctx, "prod-0001", "networking-dev"))
	require.NoError(t, r.DeletePortfolio(ctx, "port-0001", "Platform (dev)"))
	require.NoError(t, r.DeleteRepository(ctx, "api"))
	require.NoError(t, r.DeleteBucket(ctx, "sc-templates-123456789012-us-west-2"))
	require.NoError(t, r.DeleteRole(ctx, "scd-launch-role-dev"))

	assert.Empty(t, fake.Calls())
	assert.Contains(t, out.String(), "[dry-run] delete product networking-dev")
	assert.Contains(t, out.String(), "[dry-run] empty and delete s3 bucket")
}
