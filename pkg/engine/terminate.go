package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/names"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// TerminateOptions configures a terminate operation.
type TerminateOptions struct {
	Environment string

	// Products to terminate. Empty targets every product with a live
	// instance.
	Products []string

	DryRun bool
	Force  bool
}

// TerminateResult contains the results of a terminate.
type TerminateResult struct {
	Terminated []string
	Skipped    []string
}

// Terminate removes the live instances of products. Dependents are
// terminated before their dependencies. Published versions are kept, so a
// later apply provisions the product again.
func (e *Engine) Terminate(ctx context.Context, opts TerminateOptions) (*TerminateResult, error) {
	if !opts.DryRun && !opts.Force {
		return nil, errors.GuardRejection("terminate")
	}
	if e.catalog != nil {
		if _, err := e.graph(); err != nil {
			return nil, err
		}
	}

	unlock, err := e.acquire(ctx, opts.Environment, "terminate", opts.DryRun)
	if err != nil {
		return nil, err
	}
	defer unlock()

	deploy, err := e.state.Deploy(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}
	targets, err := e.terminationOrder(opts.Products, deploy)
	if err != nil {
		return nil, err
	}

	return e.terminate(ctx, opts.Environment, targets, deploy, opts.DryRun, errors.PolicyFatal)
}

func (e *Engine) terminate(ctx context.Context, environment string, targets []string, deploy *types.DeployEnvironmentState, dryRun bool, policy errors.Policy) (*TerminateResult, error) {
	result := &TerminateResult{}

	var sc cloud.ServiceCatalogAPI
	for _, p := range targets {
		ps, _ := deploy.Lookup(p)
		if ps == nil || ps.ProvisionedProductID == "" {
			e.report("[skip] %s has no live instance", p)
			result.Skipped = append(result.Skipped, p)
			continue
		}
		fmt.Fprintf(e.out, "Terminating %s (%s)\n", p, ps.ProvisionedProductID)
		if dryRun {
			e.intend("terminate provisioned product %s", ps.ProvisionedProductID)
			result.Terminated = append(result.Terminated, p)
			continue
		}

		if sc == nil {
			clients, _, err := e.clients(ctx, environment)
			if err != nil {
				return result, err
			}
			sc = clients.ServiceCatalog
		}

		err := e.terminateInstance(ctx, sc, p, ps.ProvisionedProductID)
		if err == nil {
			ps.ClearInstance()
			err = e.state.SaveDeployEnvironment(ctx, environment, deploy)
		}
		if err != nil {
			if err := policy.Handle(err, e.warn("terminate "+p)); err != nil {
				return result, err
			}
			continue
		}
		e.log.Info().Str("product", p).Msg("terminated")
		e.report("[terminated] %s", p)
		result.Terminated = append(result.Terminated, p)
	}
	return result, nil
}

// terminateInstance requests termination and waits for its record. An
// instance that no longer exists counts as terminated.
func (e *Engine) terminateInstance(ctx context.Context, sc cloud.ServiceCatalogAPI, product, instanceID string) error {
	out, err := sc.TerminateProvisionedProduct(ctx, &servicecatalog.TerminateProvisionedProductInput{
		ProvisionedProductId: aws.String(instanceID),
		TerminateToken:       aws.String(names.TerminateToken(product, e.now())),
	})
	if err != nil {
		if cloud.IsNotFound(err) {
			e.report("[gone] %s was already terminated", instanceID)
			return nil
		}
		return errors.CapabilityError("terminate", "provisioned product "+instanceID, err)
	}
	if out.RecordDetail == nil || out.RecordDetail.RecordId == nil {
		return nil
	}
	_, err = e.waitRecord(ctx, sc, aws.ToString(out.RecordDetail.RecordId))
	return err
}

// terminationOrder returns the products to terminate with dependents
// first. Without names it targets every product with a live instance.
// Products recorded in state but no longer in the catalog go first.
func (e *Engine) terminationOrder(products []string, deploy *types.DeployEnvironmentState) ([]string, error) {
	if len(products) == 0 {
		for _, p := range deploy.ProductNames() {
			if ps, _ := deploy.Lookup(p); ps.Phase() == types.PhaseProvisioned {
				products = append(products, p)
			}
		}
	}

	var known, orphaned []string
	seen := make(map[string]bool)
	for _, p := range products {
		if seen[p] {
			continue
		}
		seen[p] = true
		_, recorded := deploy.Lookup(p)
		inCatalog := false
		if e.catalog != nil {
			_, inCatalog = e.catalog.Products[p]
		}
		switch {
		case inCatalog:
			known = append(known, p)
		case recorded:
			orphaned = append(orphaned, p)
		default:
			return nil, errors.UnknownProductError(p)
		}
	}
	sort.Strings(orphaned)
	sort.Strings(known)

	if len(known) > 0 {
		if g, err := e.graph(); err == nil {
			if order, err := g.Order(known); err == nil {
				known = order
			}
		}
	}
	for i, j := 0, len(known)-1; i < j; i, j = i+1, j-1 {
		known[i], known[j] = known[j], known[i]
	}
	return append(orphaned, known...), nil
}

// DestroyOptions configures a destroy operation.
type DestroyOptions struct {
	Environment string
	DryRun      bool
	Force       bool
}

// DestroyResult contains the results of a destroy. Failures were reported
// and skipped.
type DestroyResult struct {
	Terminated []string
	Failures   int
}

// Destroy removes everything scdctl created in the environment: live
// instances, product registrations, portfolios, container registries, the
// template bucket and the launch role. Every step is best-effort. A clean
// run forgets the environment's bootstrap and deploy records. After failures
// the records keep only what could not be removed, so running destroy again
// retries exactly those steps.
func (e *Engine) Destroy(ctx context.Context, opts DestroyOptions) (*DestroyResult, error) {
	if !opts.DryRun && !opts.Force {
		return nil, errors.GuardRejection("destroy")
	}

	r, err := e.reconciler(ctx, opts.Environment, opts.DryRun)
	if err != nil {
		return nil, err
	}
	profile, err := e.profile(opts.Environment)
	if err != nil {
		return nil, err
	}

	unlock, err := e.acquire(ctx, opts.Environment, "destroy", opts.DryRun)
	if err != nil {
		return nil, err
	}
	defer unlock()

	boot, err := e.state.Bootstrap(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}
	if boot == nil {
		boot = types.NewBootstrapEnvironmentState()
	}
	deploy, err := e.state.Deploy(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}

	result := &DestroyResult{}
	failed := func(action string) func(error) {
		report := e.warn(action)
		return func(err error) {
			result.Failures++
			report(err)
		}
	}
	removed := func(err error, action string) bool {
		if err == nil {
			return true
		}
		_ = errors.PolicyBestEffort.Handle(err, failed(action))
		return false
	}

	fmt.Fprintf(e.out, "Destroying environment %q\n", opts.Environment)

	fmt.Fprintln(e.out, "[instances]")
	targets, err := e.terminationOrder(nil, deploy)
	if err != nil {
		return nil, err
	}
	terminated, err := e.terminate(ctx, opts.Environment, targets, deploy, opts.DryRun, errors.PolicyBestEffort)
	if err != nil {
		_ = errors.PolicyBestEffort.Handle(err, failed("terminate instances"))
	} else {
		result.Failures += len(targets) - len(terminated.Terminated) - len(terminated.Skipped)
	}
	if terminated != nil {
		result.Terminated = terminated.Terminated
	}

	fmt.Fprintln(e.out, "[products]")
	for _, key := range sortedKeys(boot.Products) {
		ref := boot.Products[key]
		if removed(r.DeleteProduct(ctx, ref.ID, ref.Name), "delete product "+ref.Name) {
			delete(boot.Products, key)
		}
	}

	fmt.Fprintln(e.out, "[portfolios]")
	for _, key := range sortedKeys(boot.Portfolios) {
		ref := boot.Portfolios[key]
		if removed(r.DeletePortfolio(ctx, ref.ID, ref.Name), "delete portfolio "+ref.Name) {
			delete(boot.Portfolios, key)
		}
	}

	fmt.Fprintln(e.out, "[registries]")
	for _, repo := range e.repositories(boot) {
		if removed(r.DeleteRepository(ctx, repo), "delete ecr repository "+repo) {
			delete(boot.ECRRepositories, repo)
		}
	}

	fmt.Fprintln(e.out, "[bucket]")
	bucket := boot.BucketName()
	if bucket == "" {
		prefix := ""
		if e.bootstrap != nil {
			prefix = e.bootstrap.TemplateBucket.NamePrefix
		}
		if prefix == "" {
			prefix = catalog.DefaultBucketPrefix
		}
		account := profile.AccountID
		if account == "" {
			account = boot.AccountID
		}
		bucket = names.TemplateBucket(prefix, account, profile.AWSRegion)
	}
	if removed(r.DeleteBucket(ctx, bucket), "delete s3 bucket "+bucket) {
		boot.TemplateBucket = nil
	}

	fmt.Fprintln(e.out, "[launch role]")
	role := names.LaunchRole(opts.Environment)
	if removed(r.DeleteRole(ctx, role), "delete iam role "+role) {
		boot.LaunchRole = nil
	}

	if opts.DryRun {
		fmt.Fprintln(e.out, "\nDry run complete; no changes were made.")
		return result, nil
	}

	if result.Failures > 0 {
		if err := e.keepRemainder(ctx, opts.Environment, boot, deploy); err != nil {
			return result, err
		}
		e.log.Warn().Str("environment", opts.Environment).Int("failures", result.Failures).Msg("environment partially destroyed")
		fmt.Fprintf(e.out, "\nEnvironment %q destroyed with %d warning(s). Run destroy again to retry the failed steps.\n", opts.Environment, result.Failures)
		return result, nil
	}

	if err := e.state.ForgetEnvironment(ctx, opts.Environment); err != nil {
		return result, err
	}
	e.log.Info().Str("environment", opts.Environment).Msg("environment destroyed")
	fmt.Fprintf(e.out, "\nEnvironment %q destroyed.\n", opts.Environment)
	return result, nil
}

// keepRemainder saves what a partial destroy left behind. Deploy records
// keep only products whose instance is still live.
func (e *Engine) keepRemainder(ctx context.Context, environment string, boot *types.BootstrapEnvironmentState, deploy *types.DeployEnvironmentState) error {
	if err := e.state.SaveBootstrapEnvironment(ctx, environment, boot); err != nil {
		return err
	}
	live := types.NewDeployEnvironmentState()
	for _, p := range deploy.ProductNames() {
		if ps, _ := deploy.Lookup(p); ps != nil && ps.ProvisionedProductID != "" {
			live.Products[p] = ps
		}
	}
	return e.state.SaveDeployEnvironment(ctx, environment, live)
}

// repositories returns the registries to delete: those declared in
// bootstrap.yaml and those recorded by sync.
func (e *Engine) repositories(boot *types.BootstrapEnvironmentState) []string {
	set := make(map[string]bool)
	if e.bootstrap != nil {
		for _, repo := range e.bootstrap.ECRRepositories {
			set[repo.Name] = true
		}
	}
	for name := range boot.ECRRepositories {
		set[name] = true
	}
	return sortedKeys(set)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
