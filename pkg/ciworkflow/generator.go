package ciworkflow

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/graph"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

// ModulePath is the Go module scdctl is installed from in CI.
const ModulePath = "github.com/davidthor/scdctl/cmd/scdctl"

// Secrets every pipeline reads to build the AWS profile.
var awsSecrets = []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"}

// Options configures Build.
type Options struct {
	// Environment is the scdctl environment to deploy. Required.
	Environment string

	// Profile is the environment's stored profile. The pipeline recreates
	// the named AWS profile from CI secrets.
	Profile catalog.Profile

	// Backend is the state backend type. Empty or "local" keeps state on
	// the runner, so the whole deploy runs in a single job.
	Backend string

	// BackendConfig is passed to the backend through SCDCTL_STATE_* variables.
	BackendConfig map[string]string

	// InstallVersion is the scdctl version to install. Defaults to latest.
	InstallVersion string
}

// Build turns the catalog into a deploy and a teardown workflow.
//
// With a remote state backend every product gets its own apply job. The jobs
// are chained one after another because each apply takes the environment
// lock. Commands rely on SCDCTL_ENVIRONMENT to select the environment.
func Build(c *catalog.CatalogFile, opts Options) (Workflow, error) {
	if opts.Environment == "" {
		return Workflow{}, errors.ConfigurationError("an environment is required to generate a pipeline", nil)
	}
	if c == nil {
		return Workflow{}, errors.ConfigurationError("catalog.yaml is required to generate a pipeline", nil)
	}

	g := graph.FromCatalog(c)
	if err := g.Validate(); err != nil {
		return Workflow{}, err
	}
	order, err := g.Order(nil)
	if err != nil {
		return Workflow{}, err
	}

	w := Workflow{
		Name:         "Deploy " + opts.Environment,
		Environment:  opts.Environment,
		EnvVars:      buildEnvVars(opts),
		Secrets:      append([]string(nil), awsSecrets...),
		Setup:        buildSetup(opts),
		Jobs:         BuildJobs(order, isLocalBackend(opts.Backend)),
		TeardownJobs: BuildTeardownJobs(),
	}
	return w, nil
}

// BuildJobs converts the deployment order into CI jobs. A single job runs
// everything when state stays on the runner.
func BuildJobs(order []string, singleJob bool) []Job {
	if singleJob {
		commands := []string{"scdctl sync", "scdctl deploy publish"}
		if len(order) > 0 {
			commands = append(commands, "scdctl deploy apply")
		}
		return []Job{{ID: "deploy", Name: "Deploy", Commands: commands}}
	}

	jobs := []Job{
		{ID: "sync", Name: "Sync base infrastructure", Commands: []string{"scdctl sync"}},
		{ID: "publish", Name: "Publish templates", DependsOn: []string{"sync"}, Commands: []string{"scdctl deploy publish"}},
	}
	previous := "publish"
	for _, product := range order {
		id := "apply-" + sanitizeJobID(product)
		jobs = append(jobs, Job{
			ID:        id,
			Name:      "Apply " + product,
			DependsOn: []string{previous},
			Commands:  []string{fmt.Sprintf("scdctl deploy apply -p %s", product)},
		})
		previous = id
	}
	return jobs
}

// BuildTeardownJobs creates the job that destroys the environment.
func BuildTeardownJobs() []Job {
	return []Job{{
		ID:       "destroy",
		Name:     "Destroy environment",
		Commands: []string{"scdctl destroy --force"},
	}}
}

func buildEnvVars(opts Options) map[string]string {
	vars := map[string]string{
		"SCDCTL_ENVIRONMENT": opts.Environment,
	}
	if opts.Profile.AWSRegion != "" {
		vars["AWS_REGION"] = opts.Profile.AWSRegion
	}
	if !isLocalBackend(opts.Backend) {
		vars["SCDCTL_STATE_BACKEND"] = opts.Backend
		for k, v := range opts.BackendConfig {
			vars["SCDCTL_STATE_"+strings.ToUpper(k)] = v
		}
	}
	return vars
}

func buildSetup(opts Options) []string {
	version := opts.InstallVersion
	if version == "" {
		version = "latest"
	}
	setup := []string{fmt.Sprintf("go install %s@%s", ModulePath, version)}

	profile := opts.Profile.AWSProfile
	if profile == "" {
		return setup
	}
	// The SDK refuses a named profile that is missing from the shared files.
	setup = append(setup,
		"mkdir -p ~/.aws",
		fmt.Sprintf(`printf '[%s]\naws_access_key_id = %%s\naws_secret_access_key = %%s\n' "$AWS_ACCESS_KEY_ID" "$AWS_SECRET_ACCESS_KEY" >> ~/.aws/credentials`, profile),
	)
	if opts.Profile.AWSRegion != "" {
		setup = append(setup, fmt.Sprintf(`printf '[profile %s]\nregion = %s\n' >> ~/.aws/config`, profile, opts.Profile.AWSRegion))
	}
	return setup
}

func isLocalBackend(backend string) bool {
	return backend == "" || backend == "local"
}

// sanitizeJobID makes a product name safe for use in job IDs.
func sanitizeJobID(name string) string {
	r := strings.NewReplacer("/", "-", ".", "-", " ", "-", "_", "-")
	return strings.ToLower(r.Replace(name))
}

// writeSetupComment writes a comment block naming the secrets the CI system
// must provide.
func writeSetupComment(buf *bytes.Buffer, w Workflow, location string) {
	if len(w.Secrets) == 0 {
		return
	}
	buf.WriteString(fmt.Sprintf("# Configure these in %s:\n", location))
	buf.WriteString(fmt.Sprintf("#   Secrets: %s\n", strings.Join(w.Secrets, ", ")))
	buf.WriteString("\n")
}

// teardownName derives the teardown workflow name from the deploy name.
func teardownName(name string) string {
	if t := strings.Replace(name, "Deploy", "Teardown", 1); t != name {
		return t
	}
	return name + " - Teardown"
}

// sortedMapKeys returns sorted keys from a string map.
func sortedMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
