// Package catalog defines the project configuration files: the product
// catalog, the bootstrap definition and the environment profiles.
package catalog

import (
	"sort"
	"strings"
)

// Default values applied when a file omits a setting.
const (
	DefaultBootstrapStateFile = ".bootstrap-state.json"
	DefaultDeployStateFile    = ".deploy-state.json"
	DefaultVersionFormat      = "%Y.%m.%d.%H%M%S"
	DefaultBucketPrefix       = "sc-templates"
	DefaultEncryption         = "AES256"
	DefaultTagMutability      = "IMMUTABLE"
	DefaultProviderName       = "Platform Team"
)

// ProfilesFile maps environment names to their cloud connection profile.
type ProfilesFile struct {
	Profiles map[string]Profile `yaml:"profiles" validate:"dive"`
}

// Profile is the connection configuration of one environment.
type Profile struct {
	AWSProfile string `yaml:"aws_profile" validate:"required"`
	AWSRegion  string `yaml:"aws_region" validate:"required"`
	AccountID  string `yaml:"account_id" validate:"omitempty,numeric,len=12"`
}

// BootstrapFile declares the base infrastructure reconciled by sync.
type BootstrapFile struct {
	Settings        BootstrapSettings        `yaml:"settings"`
	TemplateBucket  TemplateBucket           `yaml:"template_bucket"`
	ECRRepositories []ECRRepository          `yaml:"ecr_repositories" validate:"dive"`
	Portfolios      map[string]PortfolioSpec `yaml:"portfolios" validate:"dive"`
}

// BootstrapSettings configures where bootstrap state is kept.
type BootstrapSettings struct {
	StateFile string `yaml:"state_file"`
}

// TemplateBucket configures the bucket that stores product templates.
type TemplateBucket struct {
	NamePrefix string `yaml:"name_prefix" validate:"omitempty,hostname_rfc1123"`
	Versioning *bool  `yaml:"versioning,omitempty"`
	Encryption string `yaml:"encryption" validate:"omitempty,oneof=AES256 aws:kms"`
}

// VersioningEnabled reports whether bucket versioning is requested. It
// defaults to true.
func (b TemplateBucket) VersioningEnabled() bool {
	return b.Versioning == nil || *b.Versioning
}

// ECRRepository declares a container registry.
type ECRRepository struct {
	Name               string `yaml:"name" validate:"required"`
	ScanOnPush         *bool  `yaml:"scan_on_push,omitempty"`
	ImageTagMutability string `yaml:"image_tag_mutability" validate:"omitempty,oneof=MUTABLE IMMUTABLE"`
}

// ScanOnPushEnabled reports whether image scanning is requested. It defaults
// to true.
func (r ECRRepository) ScanOnPushEnabled() bool {
	return r.ScanOnPush == nil || *r.ScanOnPush
}

// PortfolioSpec declares a portfolio.
type PortfolioSpec struct {
	DisplayName  string            `yaml:"display_name"`
	Description  string            `yaml:"description"`
	ProviderName string            `yaml:"provider_name"`
	Principals   []string          `yaml:"principals"`
	Tags         map[string]string `yaml:"tags"`
}

// CatalogFile is the desired state: every product and its bindings.
type CatalogFile struct {
	Settings CatalogSettings        `yaml:"settings"`
	Products map[string]ProductSpec `yaml:"products" validate:"dive"`
}

// CatalogSettings configures deploy state location and version labels.
type CatalogSettings struct {
	StateFile     string `yaml:"state_file"`
	VersionFormat string `yaml:"version_format"`
}

// ProductSpec describes one deployable product.
type ProductSpec struct {
	Path             string            `yaml:"path" validate:"required"`
	Portfolio        string            `yaml:"portfolio,omitempty"`
	ECRRepository    string            `yaml:"ecr_repository,omitempty"`
	Dependencies     []string          `yaml:"dependencies,omitempty"`
	ParameterMapping map[string]string `yaml:"parameter_mapping,omitempty"`
	Outputs          []string          `yaml:"outputs,omitempty"`
}

// DependsOn reports whether the product lists dep as a dependency.
func (p ProductSpec) DependsOn(dep string) bool {
	for _, d := range p.Dependencies {
		if d == dep {
			return true
		}
	}
	return false
}

// DeclaresOutput reports whether the product declares the named output.
func (p ProductSpec) DeclaresOutput(name string) bool {
	for _, o := range p.Outputs {
		if o == name {
			return true
		}
	}
	return false
}

// SplitReference splits a parameter mapping reference of the form
// "<dependency>.<output>". Both halves must be non-empty and the output must
// not itself contain a dot.
func SplitReference(ref string) (dependency, output string, ok bool) {
	dependency, output, found := strings.Cut(ref, ".")
	if !found || dependency == "" || output == "" || strings.Contains(output, ".") {
		return "", "", false
	}
	return dependency, output, true
}

// ProductNames returns the catalog's product names in sorted order.
func (c *CatalogFile) ProductNames() []string {
	names := make([]string, 0, len(c.Products))
	for name := range c.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyDefaults fills unset settings with their defaults.
func (b *BootstrapFile) applyDefaults() {
	if b.Settings.StateFile == "" {
		b.Settings.StateFile = DefaultBootstrapStateFile
	}
	if b.TemplateBucket.NamePrefix == "" {
		b.TemplateBucket.NamePrefix = DefaultBucketPrefix
	}
	if b.TemplateBucket.Encryption == "" {
		b.TemplateBucket.Encryption = DefaultEncryption
	}
	for i := range b.ECRRepositories {
		if b.ECRRepositories[i].ImageTagMutability == "" {
			b.ECRRepositories[i].ImageTagMutability = DefaultTagMutability
		}
	}
	for key, p := range b.Portfolios {
		if p.ProviderName == "" {
			p.ProviderName = DefaultProviderName
		}
		if p.DisplayName == "" {
			p.DisplayName = key
		}
		b.Portfolios[key] = p
	}
}

func (c *CatalogFile) applyDefaults() {
	if c.Settings.StateFile == "" {
		c.Settings.StateFile = DefaultDeployStateFile
	}
	if c.Settings.VersionFormat == "" {
		c.Settings.VersionFormat = DefaultVersionFormat
	}
	if c.Products == nil {
		c.Products = make(map[string]ProductSpec)
	}
}
