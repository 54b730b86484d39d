// Package ciworkflow generates CI pipelines that deploy a scdctl project.
// It supports GitHub Actions, GitLab CI and CircleCI. Each pipeline syncs the
// environment, publishes every product, then applies products one job at a
// time in dependency order. A separate teardown pipeline destroys the
// environment.
package ciworkflow

import "fmt"

// Provider identifies a CI system.
type Provider string

const (
	ProviderGitHubActions Provider = "github-actions"
	ProviderGitLabCI      Provider = "gitlab-ci"
	ProviderCircleCI      Provider = "circleci"
)

// ValidProviders returns all supported provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderGitHubActions),
		string(ProviderGitLabCI),
		string(ProviderCircleCI),
	}
}

// NewGenerator returns the generator for a provider.
func NewGenerator(p Provider) (Generator, error) {
	switch p {
	case ProviderGitHubActions:
		return NewGitHubActionsGenerator(), nil
	case ProviderGitLabCI:
		return NewGitLabCIGenerator(), nil
	case ProviderCircleCI:
		return NewCircleCIGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown CI provider %q (expected one of %v)", p, ValidProviders())
	}
}

// Workflow is the provider-neutral description of a pipeline. Generators
// render it as provider-specific YAML.
type Workflow struct {
	// Name is the workflow display name (e.g., "Deploy dev").
	Name string

	// Environment is the scdctl environment the pipeline deploys.
	Environment string

	// EnvVars are pipeline-level environment variables.
	EnvVars map[string]string

	// Secrets are the variables the CI system must provide as secrets.
	Secrets []string

	// Setup are shell commands every job runs before its own commands:
	// installing scdctl and configuring the AWS profile.
	Setup []string

	// Jobs is the ordered list of deploy jobs.
	Jobs []Job

	// TeardownJobs destroy the environment.
	TeardownJobs []Job
}

// Job is a single CI job.
type Job struct {
	// ID is the unique job identifier (e.g., "apply-networking").
	ID string

	// Name is the human-readable job name.
	Name string

	// DependsOn lists job IDs this job waits for.
	DependsOn []string

	// Commands are the scdctl invocations the job runs, in order.
	Commands []string
}

// Generator renders workflows for one CI provider.
type Generator interface {
	// Generate produces the deploy pipeline file content.
	Generate(w Workflow) ([]byte, error)

	// GenerateTeardown produces the teardown pipeline file content.
	GenerateTeardown(w Workflow) ([]byte, error)

	// DefaultOutputPath returns the conventional output path for this provider.
	DefaultOutputPath() string

	// DefaultTeardownOutputPath returns the conventional teardown output path.
	DefaultTeardownOutputPath() string
}
