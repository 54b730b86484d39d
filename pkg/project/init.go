package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/davidthor/scdctl/pkg/errors"
)

const profilesSkeleton = `# AWS profiles configuration

profiles: {}
`

const bootstrapSkeleton = `settings:
  state_file: .bootstrap-state.json

template_bucket:
  name_prefix: sc-templates
  versioning: true
  encryption: AES256

ecr_repositories: []

portfolios: {}
`

const catalogSkeleton = `settings:
  state_file: .deploy-state.json
  version_format: "%Y.%m.%d.%H%M%S"

products: {}
`

var gitignoreLines = []string{
	"# scdctl state (sensitive)",
	".deployer/.bootstrap-state.json",
	".deployer/.deploy-state.json",
	".deployer/locks/",
}

// InitOptions configures project scaffolding.
type InitOptions struct {
	// Sample adds a placeholder product under products/sample.
	Sample bool
}

// Init scaffolds a new project in dir, which must not exist yet, and
// initializes a git repository on branch main.
func Init(dir string, opts InitOptions) (*Layout, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("directory already exists: %s", dir), nil)
	}

	layout := &Layout{Root: dir}
	for _, d := range []string{layout.DeployerDir(), layout.ProductsDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	files := []struct {
		path string
		body string
	}{
		{layout.ProfilesFile(), profilesSkeleton},
		{layout.BootstrapFile(), bootstrapSkeleton},
		{layout.CatalogFile(), catalogSkeleton},
	}
	for _, f := range files {
		if err := writeIfMissing(f.path, f.body); err != nil {
			return nil, err
		}
	}

	if err := ensureLines(layout.Gitignore(), gitignoreLines); err != nil {
		return nil, err
	}

	if _, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	}); err != nil && err != git.ErrRepositoryAlreadyExists {
		return nil, fmt.Errorf("failed to initialize git repository: %w", err)
	}

	if opts.Sample {
		if err := writeSample(layout); err != nil {
			return nil, err
		}
	}

	return layout, nil
}

func writeSample(layout *Layout) error {
	dir := filepath.Join(layout.ProductsDir(), "sample")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	meta, err := productMetadata("sample", "Sample product created by scdctl", "")
	if err != nil {
		return err
	}
	if err := writeIfMissing(filepath.Join(dir, "product.yaml"), meta); err != nil {
		return err
	}
	tmpl := renderTemplate("Sample product created by scdctl", nil, []string{"SampleOutput"})
	return writeIfMissing(filepath.Join(dir, TemplateFile), tmpl)
}

func writeIfMissing(path, body string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ensureLines appends each line not already present in the file.
func ensureLines(path string, lines []string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	present := make(map[string]bool)
	for _, l := range strings.Split(string(existing), "\n") {
		present[strings.TrimRight(l, " \t\r")] = true
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	added := false
	for _, l := range lines {
		if present[l] {
			continue
		}
		b.WriteString(l)
		b.WriteString("\n")
		added = true
	}
	if !added {
		return nil
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
