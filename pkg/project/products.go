package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/graph"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

// TemplateFile is the CloudFormation template inside each product directory.
const TemplateFile = "template.yaml"

// AddProductOptions describes a product to add to the catalog.
type AddProductOptions struct {
	Name         string
	Path         string // directory under products/, defaults to Name
	Portfolio    string
	Description  string
	Dependencies []string
	Outputs      []string
	Mappings     []string // Param=dep.output
}

// productFile is the human-facing product.yaml written next to the template.
type productFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Portfolio   string `yaml:"portfolio"`
}

// AddProduct scaffolds a product directory with a placeholder template and
// registers the product in catalog.yaml.
func (l *Layout) AddProduct(opts AddProductOptions) (*catalog.ProductSpec, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.ConfigurationError("--name cannot be empty", nil)
	}

	cat, err := catalog.LoadCatalog(l.CatalogFile())
	if err != nil {
		return nil, err
	}
	if _, exists := cat.Products[opts.Name]; exists {
		return nil, errors.ConfigurationError(
			fmt.Sprintf("product %q already exists in %s/catalog.yaml", opts.Name, DirName), nil).
			WithDetail("product", opts.Name)
	}

	mapping, err := ParseMappings(opts.Mappings)
	if err != nil {
		return nil, err
	}

	path := opts.Path
	if path == "" {
		path = opts.Name
	}
	spec := catalog.ProductSpec{
		Path:             path,
		Portfolio:        opts.Portfolio,
		Dependencies:     opts.Dependencies,
		ParameterMapping: mapping,
		Outputs:          opts.Outputs,
	}

	// Nothing is written unless the catalog stays valid with the new product.
	cat.Products[opts.Name] = spec
	if err := graph.FromCatalog(cat).Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(l.ProductsDir(), path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	meta, err := productMetadata(opts.Name, opts.Description, opts.Portfolio)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "product.yaml"), []byte(meta), 0644); err != nil {
		return nil, fmt.Errorf("failed to write product.yaml: %w", err)
	}

	description := opts.Description
	if description == "" {
		description = "Service Catalog template for " + opts.Name
	}
	tmpl := renderTemplate(description, mapping, opts.Outputs)
	if err := os.WriteFile(filepath.Join(dir, TemplateFile), []byte(tmpl), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", TemplateFile, err)
	}

	if err := catalog.SaveCatalog(l.CatalogFile(), cat); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ParseMappings parses Param=dep.output pairs. It returns nil for an empty
// list.
func ParseMappings(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		param, ref, ok := strings.Cut(pair, "=")
		if !ok || param == "" || ref == "" {
			return nil, errors.ConfigurationError(
				fmt.Sprintf("invalid --param-mapping %q (expected Param=dep.output)", pair), nil)
		}
		out[param] = ref
	}
	return out, nil
}

func productMetadata(name, description, portfolio string) (string, error) {
	data, err := yaml.Marshal(productFile{Name: name, Description: description, Portfolio: portfolio})
	if err != nil {
		return "", fmt.Errorf("failed to encode product.yaml: %w", err)
	}
	return string(data), nil
}

// renderTemplate writes a minimal valid CloudFormation template with one
// parameter per mapping and one exported output per declared output.
func renderTemplate(description string, mapping map[string]string, outputs []string) string {
	var b strings.Builder
	b.WriteString("AWSTemplateFormatVersion: '2010-09-09'\n")
	fmt.Fprintf(&b, "Description: %s\n\n", strings.ReplaceAll(description, "\n", " "))

	b.WriteString("Parameters:\n")
	b.WriteString("  Environment:\n")
	b.WriteString("    Type: String\n")
	b.WriteString("    Default: dev\n")
	params := make([]string, 0, len(mapping))
	for p := range mapping {
		params = append(params, p)
	}
	sort.Strings(params)
	for _, p := range params {
		fmt.Fprintf(&b, "\n  %s:\n", p)
		b.WriteString("    Type: String\n")
		fmt.Fprintf(&b, "    Description: Mapped from %s\n", mapping[p])
	}

	b.WriteString("\nResources:\n")
	b.WriteString("  PlaceholderResource:\n")
	b.WriteString("    Type: AWS::CloudFormation::WaitConditionHandle\n")

	if len(outputs) > 0 {
		b.WriteString("\nOutputs:\n")
		for _, o := range outputs {
			fmt.Fprintf(&b, "  %s:\n", o)
			fmt.Fprintf(&b, "    Description: %s\n", o)
			b.WriteString("    Value: !Ref PlaceholderResource\n")
			b.WriteString("    Export:\n")
			fmt.Fprintf(&b, "      Name: !Sub \"${Environment}-%s\"\n", o)
		}
	}
	return b.String()
}
