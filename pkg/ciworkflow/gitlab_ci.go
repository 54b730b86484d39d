package ciworkflow

import (
	"bytes"
	"fmt"
)

// GitLabCIGenerator generates GitLab CI pipeline YAML.
type GitLabCIGenerator struct{}

// NewGitLabCIGenerator creates a new GitLab CI generator.
func NewGitLabCIGenerator() *GitLabCIGenerator {
	return &GitLabCIGenerator{}
}

// DefaultOutputPath returns the conventional path for the pipeline.
func (g *GitLabCIGenerator) DefaultOutputPath() string {
	return ".gitlab-ci.yml"
}

// DefaultTeardownOutputPath returns the conventional path for the teardown pipeline.
func (g *GitLabCIGenerator) DefaultTeardownOutputPath() string {
	return ".gitlab-ci-teardown.yml"
}

// Generate produces a GitLab CI pipeline YAML file.
func (g *GitLabCIGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeSetupComment(&buf, w, "Settings > CI/CD > Variables (protected, masked)")
	writeGitLabPipeline(&buf, w, w.Jobs, false)

	return buf.Bytes(), nil
}

// GenerateTeardown produces a GitLab CI teardown pipeline YAML file. Its jobs
// are manual.
func (g *GitLabCIGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	writeGitLabPipeline(&buf, w, w.TeardownJobs, true)
	return buf.Bytes(), nil
}

func writeGitLabPipeline(buf *bytes.Buffer, w Workflow, jobs []Job, manual bool) {
	// Stages: derive from job ordering
	stages := deriveStages(jobs)
	buf.WriteString("stages:\n")
	for _, stage := range stages {
		buf.WriteString(fmt.Sprintf("  - %s\n", stage))
	}
	buf.WriteString("\n")

	if len(w.EnvVars) > 0 {
		buf.WriteString("variables:\n")
		for _, k := range sortedMapKeys(w.EnvVars) {
			buf.WriteString(fmt.Sprintf("  %s: %s\n", k, w.EnvVars[k]))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("default:\n")
	buf.WriteString("  image: golang:latest\n")
	if len(w.Setup) > 0 {
		buf.WriteString("  before_script:\n")
		for _, line := range w.Setup {
			buf.WriteString(fmt.Sprintf("    - %s\n", line))
		}
	}
	buf.WriteString("\n")

	stageMap := assignStages(jobs, stages)
	for _, job := range jobs {
		writeGitLabJob(buf, job, stageMap[job.ID], "scdctl-"+w.Environment, manual)
	}
}

// writeGitLabJob writes a single job in GitLab CI format.
// Jobs of one environment share a resource group so only one runs at a time.
func writeGitLabJob(buf *bytes.Buffer, job Job, stage, resourceGroup string, manual bool) {
	buf.WriteString(fmt.Sprintf("%s:\n", job.ID))
	buf.WriteString(fmt.Sprintf("  stage: %s\n", stage))
	buf.WriteString(fmt.Sprintf("  resource_group: %s\n", resourceGroup))

	if len(job.DependsOn) > 0 {
		buf.WriteString("  needs:\n")
		for _, dep := range job.DependsOn {
			buf.WriteString(fmt.Sprintf("    - %s\n", dep))
		}
	}
	if manual {
		buf.WriteString("  when: manual\n")
	}

	buf.WriteString("  script:\n")
	for _, command := range job.Commands {
		buf.WriteString(fmt.Sprintf("    - %s\n", command))
	}

	buf.WriteString("\n")
}

// deriveStages creates stage names from the job DAG depth.
func deriveStages(jobs []Job) []string {
	if len(jobs) == 0 {
		return nil
	}

	depths := computeJobDepths(jobs)
	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	stages := make([]string, maxDepth+1)
	for i := range stages {
		stages[i] = fmt.Sprintf("stage-%d", i)
	}
	return stages
}

// assignStages maps job IDs to their stage names based on depth.
func assignStages(jobs []Job, stages []string) map[string]string {
	depths := computeJobDepths(jobs)
	result := make(map[string]string, len(jobs))
	for _, job := range jobs {
		d := depths[job.ID]
		if d < len(stages) {
			result[job.ID] = stages[d]
		} else {
			result[job.ID] = stages[len(stages)-1]
		}
	}
	return result
}

// computeJobDepths returns the longest DependsOn chain leading to each job.
func computeJobDepths(jobs []Job) map[string]int {
	depths := make(map[string]int, len(jobs))
	for _, job := range jobs {
		depths[job.ID] = 0
	}

	changed := true
	for changed {
		changed = false
		for _, job := range jobs {
			for _, dep := range job.DependsOn {
				depDepth, ok := depths[dep]
				if ok && depDepth+1 > depths[job.ID] {
					depths[job.ID] = depDepth + 1
					changed = true
				}
			}
		}
	}
	return depths
}
