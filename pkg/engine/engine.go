// Package engine drives the provisioning lifecycle of catalog products:
// validation, planning, publishing template versions, applying them as
// provisioned instances, and tearing instances and whole environments down.
package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/graph"
	"github.com/davidthor/scdctl/pkg/oci"
	"github.com/davidthor/scdctl/pkg/reconciler"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// Record polling defaults.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 20 * time.Minute
)

// Connector builds the cloud clients for an environment's profile.
type Connector func(ctx context.Context, profile catalog.Profile) (*cloud.Clients, error)

// ConnectProfile is the default Connector. It loads the named AWS profile
// in the profile's region.
func ConnectProfile(ctx context.Context, profile catalog.Profile) (*cloud.Clients, error) {
	clients, err := cloud.NewClients(ctx, cloud.Config{Profile: profile.AWSProfile, Region: profile.AWSRegion})
	if err != nil {
		return nil, errors.ConfigurationError("failed to load cloud credentials", err).
			WithDetail("aws_profile", profile.AWSProfile)
	}
	return clients, nil
}

// Options configures an Engine.
type Options struct {
	// State is the environment state store. Required.
	State state.Manager

	Catalog   *catalog.CatalogFile
	Bootstrap *catalog.BootstrapFile
	Profiles  *catalog.ProfilesFile

	// Connect builds cloud clients. Defaults to ConnectProfile.
	Connect Connector

	// ProductsDir holds one directory per product path, each with a
	// template.yaml.
	ProductsDir string

	// Commit is recorded with every publish and apply. Empty when the
	// project is not under version control.
	Commit string

	// Output receives human-readable progress. May be nil.
	Output io.Writer

	Logger zerolog.Logger

	PollInterval time.Duration
	PollTimeout  time.Duration

	// Lock takes the backend's advisory lock around mutating operations.
	Lock bool

	// RegistryOptions configure the client used to list registry tags.
	RegistryOptions []oci.Option

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Engine runs lifecycle operations against one project.
type Engine struct {
	state        state.Manager
	catalog      *catalog.CatalogFile
	bootstrap    *catalog.BootstrapFile
	profiles     *catalog.ProfilesFile
	connect      Connector
	productsDir  string
	commit       string
	out          io.Writer
	log          zerolog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
	lock         bool
	registryOpts []oci.Option
	now          func() time.Time
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		state:        opts.State,
		catalog:      opts.Catalog,
		bootstrap:    opts.Bootstrap,
		profiles:     opts.Profiles,
		connect:      opts.Connect,
		productsDir:  opts.ProductsDir,
		commit:       opts.Commit,
		out:          opts.Output,
		log:          opts.Logger,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		lock:         opts.Lock,
		registryOpts: opts.RegistryOptions,
		now:          opts.Now,
	}
	if e.connect == nil {
		e.connect = ConnectProfile
	}
	if e.out == nil {
		e.out = io.Discard
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.pollTimeout <= 0 {
		e.pollTimeout = DefaultPollTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.profiles == nil {
		e.profiles = &catalog.ProfilesFile{Profiles: make(map[string]catalog.Profile)}
	}
	return e
}

// Validate checks the catalog graph and that the environment has been
// synced. It makes no remote calls.
func (e *Engine) Validate(ctx context.Context, environment string) error {
	_, _, err := e.validate(ctx, environment)
	return err
}

func (e *Engine) validate(ctx context.Context, environment string) (*graph.Graph, *types.BootstrapEnvironmentState, error) {
	g, err := e.graph()
	if err != nil {
		return nil, nil, err
	}

	boot, err := e.state.Bootstrap(ctx, environment)
	if err != nil {
		return nil, nil, err
	}
	if boot == nil {
		return nil, nil, errors.StateError(
			fmt.Sprintf("environment %q not bootstrapped/synced (run `scdctl sync -e %s`)", environment, environment),
			map[string]interface{}{"environment": environment},
		)
	}
	if boot.BucketName() == "" {
		return nil, nil, errors.StateError(
			fmt.Sprintf("bootstrap state missing template bucket (run `scdctl sync -e %s`)", environment),
			map[string]interface{}{"environment": environment},
		)
	}
	return g, boot, nil
}

func (e *Engine) graph() (*graph.Graph, error) {
	if e.catalog == nil {
		return nil, errors.ConfigurationError("catalog.yaml not loaded", nil)
	}
	g := graph.FromCatalog(e.catalog)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// PlanStep is one product in a deployment plan.
type PlanStep struct {
	Product    string
	Phase      types.Phase
	Version    string
	InstanceID string
}

// Action describes what apply would do for the step.
func (s PlanStep) Action() string {
	switch s.Phase {
	case types.PhaseUnpublished:
		return "blocked: not published"
	case types.PhaseProvisioned:
		return "update " + s.InstanceID
	default:
		return "provision"
	}
}

// Plan returns the deployment order of products, or of every product when
// none are named, annotated with each product's recorded state.
func (e *Engine) Plan(ctx context.Context, environment string, products []string) ([]PlanStep, error) {
	g, err := e.graph()
	if err != nil {
		return nil, err
	}
	order, err := g.Order(products)
	if err != nil {
		return nil, err
	}

	env, err := e.state.Deploy(ctx, environment)
	if err != nil {
		return nil, err
	}

	steps := make([]PlanStep, 0, len(order))
	for _, p := range order {
		step := PlanStep{Product: p, Phase: types.PhaseUnpublished}
		if ps, ok := env.Lookup(p); ok {
			step.Phase = ps.Phase()
			step.Version = ps.Version
			step.InstanceID = ps.ProvisionedProductID
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ProductStatus is the recorded lifecycle position of one product.
type ProductStatus struct {
	Product     string
	Phase       types.Phase
	Version     string
	PublishedAt *time.Time
	InstanceID  string
	DeployedAt  *time.Time
	Outputs     map[string]string
}

// Status reports every catalog product's recorded state. It makes no remote
// calls.
func (e *Engine) Status(ctx context.Context, environment string) ([]ProductStatus, error) {
	if e.catalog == nil {
		return nil, errors.ConfigurationError("catalog.yaml not loaded", nil)
	}
	env, err := e.state.Deploy(ctx, environment)
	if err != nil {
		return nil, err
	}

	var result []ProductStatus
	for _, p := range e.catalog.ProductNames() {
		st := ProductStatus{Product: p, Phase: types.PhaseUnpublished}
		if ps, ok := env.Lookup(p); ok {
			st.Phase = ps.Phase()
			st.Version = ps.Version
			st.PublishedAt = ps.PublishedAt
			st.InstanceID = ps.ProvisionedProductID
			st.DeployedAt = ps.DeployedAt
			st.Outputs = ps.Outputs
		}
		result = append(result, st)
	}
	return result, nil
}

// SyncOptions configures a bootstrap sync.
type SyncOptions struct {
	Environment string
	DryRun      bool
}

// Sync reconciles the environment's bootstrap primitives against
// bootstrap.yaml and catalog.yaml.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*types.BootstrapEnvironmentState, error) {
	if e.bootstrap == nil || e.catalog == nil {
		return nil, errors.ConfigurationError("sync requires bootstrap.yaml and catalog.yaml", nil)
	}
	r, err := e.reconciler(ctx, opts.Environment, opts.DryRun)
	if err != nil {
		return nil, err
	}

	unlock, err := e.acquire(ctx, opts.Environment, "sync", opts.DryRun)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return r.Sync(ctx, reconciler.SyncOptions{Bootstrap: e.bootstrap, Catalog: e.catalog})
}

func (e *Engine) profile(environment string) (catalog.Profile, error) {
	return e.profiles.Profile(environment)
}

func (e *Engine) clients(ctx context.Context, environment string) (*cloud.Clients, catalog.Profile, error) {
	profile, err := e.profile(environment)
	if err != nil {
		return nil, catalog.Profile{}, err
	}
	clients, err := e.connect(ctx, profile)
	if err != nil {
		return nil, catalog.Profile{}, err
	}
	return clients, profile, nil
}

func (e *Engine) reconciler(ctx context.Context, environment string, dryRun bool) (*reconciler.Reconciler, error) {
	clients, profile, err := e.clients(ctx, environment)
	if err != nil {
		return nil, err
	}
	return reconciler.New(reconciler.Options{
		Target: reconciler.Target{
			Environment: environment,
			AccountID:   profile.AccountID,
			Region:      profile.AWSRegion,
		},
		Clients: clients,
		State:   e.state,
		Output:  e.out,
		Logger:  e.log,
		DryRun:  dryRun,
	}), nil
}

// acquire takes the environment lock for a mutating operation. Dry runs
// and engines created without locking get a no-op release.
func (e *Engine) acquire(ctx context.Context, environment, operation string, dryRun bool) (func(), error) {
	if !e.lock || dryRun {
		return func() {}, nil
	}
	lock, err := e.state.Lock(ctx, state.LockScope{Environment: environment, Operation: operation})
	if err != nil {
		return nil, err
	}
	e.log.Debug().Str("environment", environment).Str("lock", lock.ID()).Msg("lock acquired")
	return func() {
		if err := lock.Unlock(context.Background()); err != nil {
			e.log.Warn().Err(err).Str("environment", environment).Msg("failed to release lock")
			fmt.Fprintf(e.out, "Warning: failed to release state lock: %v\n", err)
		}
	}, nil
}

// selectProducts returns the named products, or every catalog product when
// none are named, sorted. Unknown names are rejected.
func (e *Engine) selectProducts(products []string) ([]string, error) {
	if len(products) == 0 {
		return e.catalog.ProductNames(), nil
	}
	seen := make(map[string]bool, len(products))
	var out []string
	for _, p := range products {
		if _, ok := e.catalog.Products[p]; !ok {
			return nil, errors.UnknownProductError(p)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// intend prints what a dry run would have done.
func (e *Engine) intend(format string, args ...interface{}) {
	fmt.Fprintf(e.out, "  [dry-run] "+format+"\n", args...)
}

func (e *Engine) report(format string, args ...interface{}) {
	fmt.Fprintf(e.out, "  "+format+"\n", args...)
}

// warn returns the callback that reports an error ignored under the
// best-effort policy.
func (e *Engine) warn(action string) func(error) {
	return func(err error) {
		e.log.Warn().Err(err).Str("action", action).Msg("ignored failure")
		fmt.Fprintf(e.out, "  [warn] %s: %v\n", action, err)
	}
}
