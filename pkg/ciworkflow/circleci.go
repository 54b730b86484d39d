package ciworkflow

import (
	"bytes"
	"fmt"
	"strings"
)

// CircleCIGenerator generates CircleCI pipeline YAML.
type CircleCIGenerator struct{}

// NewCircleCIGenerator creates a new CircleCI generator.
func NewCircleCIGenerator() *CircleCIGenerator {
	return &CircleCIGenerator{}
}

// DefaultOutputPath returns the conventional path for the pipeline.
func (g *CircleCIGenerator) DefaultOutputPath() string {
	return ".circleci/config.yml"
}

// DefaultTeardownOutputPath returns the conventional path for teardown.
func (g *CircleCIGenerator) DefaultTeardownOutputPath() string {
	return ".circleci/teardown.yml"
}

// Generate produces a CircleCI pipeline YAML file.
func (g *CircleCIGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeSetupComment(&buf, w, "Project Settings > Environment Variables")
	writeCircleCIPipeline(&buf, w, w.Jobs, sanitizeCircleCIID(w.Name))

	return buf.Bytes(), nil
}

// GenerateTeardown produces a CircleCI teardown pipeline YAML file.
func (g *CircleCIGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	writeCircleCIPipeline(&buf, w, w.TeardownJobs, "teardown")
	return buf.Bytes(), nil
}

func writeCircleCIPipeline(buf *bytes.Buffer, w Workflow, jobs []Job, workflowID string) {
	buf.WriteString("version: 2.1\n\n")

	// Reusable install step
	buf.WriteString("commands:\n")
	buf.WriteString("  install-scdctl:\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - run:\n")
	buf.WriteString("          name: Install scdctl\n")
	buf.WriteString("          command: |\n")
	for _, line := range w.Setup {
		buf.WriteString(fmt.Sprintf("            %s\n", line))
	}
	buf.WriteString("\n")

	buf.WriteString("jobs:\n")
	for _, job := range jobs {
		writeCircleCIJob(buf, job, w.EnvVars)
	}

	buf.WriteString("workflows:\n")
	buf.WriteString(fmt.Sprintf("  %s:\n", workflowID))
	buf.WriteString("    jobs:\n")
	for _, job := range jobs {
		if len(job.DependsOn) == 0 {
			buf.WriteString(fmt.Sprintf("      - %s\n", job.ID))
			continue
		}
		buf.WriteString(fmt.Sprintf("      - %s:\n", job.ID))
		buf.WriteString("          requires:\n")
		for _, dep := range job.DependsOn {
			buf.WriteString(fmt.Sprintf("            - %s\n", dep))
		}
	}
}

// writeCircleCIJob writes a single job in CircleCI format.
func writeCircleCIJob(buf *bytes.Buffer, job Job, env map[string]string) {
	buf.WriteString(fmt.Sprintf("  %s:\n", job.ID))
	buf.WriteString("    docker:\n")
	buf.WriteString("      - image: cimg/go:1.22\n")
	if len(env) > 0 {
		buf.WriteString("    environment:\n")
		for _, k := range sortedMapKeys(env) {
			buf.WriteString(fmt.Sprintf("      %s: %s\n", k, env[k]))
		}
	}
	buf.WriteString("    steps:\n")
	buf.WriteString("      - checkout\n")
	buf.WriteString("      - install-scdctl\n")

	for _, command := range job.Commands {
		buf.WriteString("      - run:\n")
		buf.WriteString(fmt.Sprintf("          name: %s\n", command))
		buf.WriteString(fmt.Sprintf("          command: %s\n", command))
	}

	buf.WriteString("\n")
}

// sanitizeCircleCIID makes a workflow name safe for YAML keys.
func sanitizeCircleCIID(name string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", ".", "-")
	return strings.ToLower(r.Replace(name))
}
