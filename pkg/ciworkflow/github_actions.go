package ciworkflow

import (
	"bytes"
	"fmt"
	"strings"
)

// GitHubActionsGenerator generates GitHub Actions workflow YAML.
type GitHubActionsGenerator struct{}

// NewGitHubActionsGenerator creates a new GitHub Actions generator.
func NewGitHubActionsGenerator() *GitHubActionsGenerator {
	return &GitHubActionsGenerator{}
}

// DefaultOutputPath returns the conventional path for the deploy workflow.
func (g *GitHubActionsGenerator) DefaultOutputPath() string {
	return ".github/workflows/deploy.yml"
}

// DefaultTeardownOutputPath returns the conventional path for the teardown workflow.
func (g *GitHubActionsGenerator) DefaultTeardownOutputPath() string {
	return ".github/workflows/teardown.yml"
}

// Generate produces a GitHub Actions deploy workflow YAML file.
func (g *GitHubActionsGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeSetupComment(&buf, w, "Settings > Secrets and variables > Actions")

	buf.WriteString(fmt.Sprintf("name: %s\n", w.Name))
	buf.WriteString("on:\n")
	buf.WriteString("  push:\n")
	buf.WriteString("    branches: [main]\n")
	buf.WriteString("  workflow_dispatch:\n")
	buf.WriteString("\n")

	writeGitHubCommon(&buf, w)

	buf.WriteString("jobs:\n")
	for _, job := range w.Jobs {
		writeGitHubJob(&buf, job, w.Setup)
	}

	return buf.Bytes(), nil
}

// GenerateTeardown produces a GitHub Actions teardown workflow YAML file.
// Teardown only runs when triggered by hand.
func (g *GitHubActionsGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("name: %s\n", teardownName(w.Name)))
	buf.WriteString("on:\n")
	buf.WriteString("  workflow_dispatch:\n")
	buf.WriteString("\n")

	writeGitHubCommon(&buf, w)

	buf.WriteString("jobs:\n")
	for _, job := range w.TeardownJobs {
		writeGitHubJob(&buf, job, w.Setup)
	}

	return buf.Bytes(), nil
}

// writeGitHubCommon writes the concurrency group and the workflow-level env.
// Deploy and teardown share a group so they never hold the lock at once.
func writeGitHubCommon(buf *bytes.Buffer, w Workflow) {
	buf.WriteString("concurrency:\n")
	buf.WriteString(fmt.Sprintf("  group: scdctl-%s\n", w.Environment))
	buf.WriteString("  cancel-in-progress: false\n")
	buf.WriteString("\n")

	env := make(map[string]string, len(w.EnvVars)+len(w.Secrets))
	for k, v := range w.EnvVars {
		env[k] = v
	}
	for _, s := range w.Secrets {
		env[s] = fmt.Sprintf("${{ secrets.%s }}", s)
	}
	if len(env) == 0 {
		return
	}

	buf.WriteString("env:\n")
	for _, k := range sortedMapKeys(env) {
		buf.WriteString(fmt.Sprintf("  %s: %s\n", k, env[k]))
	}
	buf.WriteString("\n")
}

// writeGitHubJob writes a single job in GitHub Actions YAML format.
func writeGitHubJob(buf *bytes.Buffer, job Job, setup []string) {
	buf.WriteString(fmt.Sprintf("  %s:\n", job.ID))
	buf.WriteString(fmt.Sprintf("    name: %s\n", job.Name))
	if len(job.DependsOn) > 0 {
		buf.WriteString(fmt.Sprintf("    needs: [%s]\n", strings.Join(job.DependsOn, ", ")))
	}
	buf.WriteString("    runs-on: ubuntu-latest\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - uses: actions/checkout@v4\n")
	buf.WriteString("      - uses: actions/setup-go@v5\n")
	buf.WriteString("        with:\n")
	buf.WriteString("          go-version: stable\n")

	if len(setup) > 0 {
		buf.WriteString("      - name: Install scdctl\n")
		buf.WriteString("        run: |\n")
		for _, line := range setup {
			buf.WriteString(fmt.Sprintf("          %s\n", line))
		}
	}

	for _, command := range job.Commands {
		buf.WriteString(fmt.Sprintf("      - name: %s\n", command))
		buf.WriteString(fmt.Sprintf("        run: %s\n", command))
	}

	buf.WriteString("\n")
}
