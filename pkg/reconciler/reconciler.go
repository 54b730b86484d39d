// Package reconciler drives the bootstrap primitives of an environment toward
// their declared configuration: the template bucket, container registries,
// portfolios, the launch role and each product's catalog registration.
//
// Every Ensure operation describes before it creates, so a sync can be re-run
// at any time, including after local state was lost. In dry-run mode no
// mutating call is made; intended actions are printed instead and synthetic
// identifiers stand in for objects that do not exist yet.
package reconciler

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// Placeholder identifiers returned by dry-run for objects that would be
// created.
const (
	DryRunProductID   = "prod-dryrun"
	DryRunPortfolioID = "port-dryrun"
	DryRunARN         = "arn:dryrun"
)

// Target identifies the account and environment being reconciled.
type Target struct {
	Environment string
	AccountID   string
	Region      string
}

// Options configures a Reconciler.
type Options struct {
	Target Target

	// Clients for the target account. Required.
	Clients *cloud.Clients

	// State receives the bootstrap record after a successful sync. May be
	// nil when the caller persists the result itself.
	State state.Manager

	// Output receives human-readable progress. May be nil.
	Output io.Writer

	Logger zerolog.Logger

	DryRun bool
}

// Reconciler performs idempotent ensure and delete operations for one
// environment.
type Reconciler struct {
	target  Target
	clients *cloud.Clients
	state   state.Manager
	out     io.Writer
	log     zerolog.Logger
	dryRun  bool
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	return &Reconciler{
		target:  opts.Target,
		clients: opts.Clients,
		state:   opts.State,
		out:     out,
		log:     opts.Logger.With().Str("environment", opts.Target.Environment).Logger(),
		dryRun:  opts.DryRun,
	}
}

// Target returns the reconciled environment. The account id is filled in
// once Sync has looked it up.
func (r *Reconciler) Target() Target {
	return r.target
}

// SyncOptions holds the desired bootstrap configuration.
type SyncOptions struct {
	Bootstrap *catalog.BootstrapFile
	Catalog   *catalog.CatalogFile
}

// Sync ensures every bootstrap primitive in order: template bucket,
// registries, portfolios, launch role, then each catalog product with its
// portfolio association and launch constraint. The resulting record is
// saved unless running dry.
func (r *Reconciler) Sync(ctx context.Context, opts SyncOptions) (*types.BootstrapEnvironmentState, error) {
	if opts.Bootstrap == nil || opts.Catalog == nil {
		return nil, errors.ConfigurationError("sync requires both bootstrap and catalog configuration", nil)
	}
	if err := checkPortfolioReferences(opts); err != nil {
		return nil, err
	}
	if err := r.resolveAccount(ctx); err != nil {
		return nil, err
	}

	r.log.Info().Bool("dry_run", r.dryRun).Str("account_id", r.target.AccountID).Str("region", r.target.Region).Msg("sync started")
	fmt.Fprintf(r.out, "Syncing environment %q (account %s, %s)\n", r.target.Environment, r.target.AccountID, r.target.Region)

	st := types.NewBootstrapEnvironmentState()
	st.AccountID = r.target.AccountID
	st.Region = r.target.Region

	fmt.Fprintln(r.out, "[bucket]")
	bucket, err := r.EnsureTemplateBucket(ctx, opts.Bootstrap.TemplateBucket)
	if err != nil {
		return nil, err
	}
	st.TemplateBucket = &bucket

	if len(opts.Bootstrap.ECRRepositories) > 0 {
		fmt.Fprintln(r.out, "[registries]")
	}
	for _, repo := range opts.Bootstrap.ECRRepositories {
		ref, err := r.EnsureRepository(ctx, repo)
		if err != nil {
			return nil, err
		}
		st.ECRRepositories[repo.Name] = ref
	}

	if len(opts.Bootstrap.Portfolios) > 0 {
		fmt.Fprintln(r.out, "[portfolios]")
	}
	for _, key := range sortedKeys(opts.Bootstrap.Portfolios) {
		ref, err := r.EnsurePortfolio(ctx, key, opts.Bootstrap.Portfolios[key])
		if err != nil {
			return nil, err
		}
		st.Portfolios[key] = ref
	}

	fmt.Fprintln(r.out, "[launch role]")
	role, err := r.EnsureLaunchRole(ctx)
	if err != nil {
		return nil, err
	}
	st.LaunchRole = &role

	if len(opts.Catalog.Products) > 0 {
		fmt.Fprintln(r.out, "[products]")
	}
	for _, name := range opts.Catalog.ProductNames() {
		spec := opts.Catalog.Products[name]

		ref, err := r.EnsureProduct(ctx, name, bucket.Name)
		if err != nil {
			return nil, err
		}
		st.Products[name] = ref

		if spec.Portfolio == "" {
			continue
		}
		portfolio := st.Portfolios[spec.Portfolio]
		if err := r.EnsureProductInPortfolio(ctx, ref, portfolio); err != nil {
			return nil, err
		}
		if err := r.EnsureLaunchConstraint(ctx, ref, portfolio, role.ARN); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	st.BootstrappedAt = &now

	if r.dryRun {
		fmt.Fprintln(r.out, "\nDry run complete; no changes were made.")
		return st, nil
	}

	if r.state != nil {
		if err := r.state.SaveBootstrapEnvironment(ctx, r.target.Environment, st); err != nil {
			return nil, err
		}
		r.log.Info().Msg("bootstrap state saved")
	}
	fmt.Fprintf(r.out, "\nEnvironment %q synced.\n", r.target.Environment)
	return st, nil
}

// checkPortfolioReferences rejects products bound to undeclared portfolios
// before any remote call is made.
func checkPortfolioReferences(opts SyncOptions) error {
	for _, name := range opts.Catalog.ProductNames() {
		key := opts.Catalog.Products[name].Portfolio
		if key == "" {
			continue
		}
		if _, ok := opts.Bootstrap.Portfolios[key]; !ok {
			return errors.ConfigurationError(
				fmt.Sprintf("product %q references unknown portfolio %q (declare it in bootstrap.yaml)", name, key), nil).
				WithDetail("product", name).
				WithDetail("portfolio", key)
		}
	}
	return nil
}

// resolveAccount looks the account id up from the caller identity when the
// profile does not record one. Bucket names depend on it.
func (r *Reconciler) resolveAccount(ctx context.Context) error {
	if r.target.AccountID != "" {
		return nil
	}
	out, err := r.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return errors.CapabilityError("get caller identity", "", err)
	}
	r.target.AccountID = aws.ToString(out.Account)
	return nil
}

// intend prints what a dry run would have done.
func (r *Reconciler) intend(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "[dry-run] "+format+"\n", args...)
}

func (r *Reconciler) report(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "  "+format+"\n", args...)
}

// warn returns the callback that reports an error ignored under the
// best-effort policy.
func (r *Reconciler) warn(action string) func(error) {
	return func(err error) {
		r.log.Warn().Err(err).Str("action", action).Msg("ignored failure")
		fmt.Fprintf(r.out, "  [warn] %s: %v\n", action, err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
