// Package types defines the persisted state documents: bootstrap state, the
// record of base infrastructure per environment, and deploy state, the
// record of what is live per product.
package types

import (
	"sort"
	"time"
)

// Schema versions written into new documents.
const (
	BootstrapSchemaVersion = "1.0"
	DeploySchemaVersion    = "2.0"
)

// ResourceRef identifies a remote resource. Which fields are set depends on
// the resource kind.
type ResourceRef struct {
	ID   string `json:"id,omitempty"`
	ARN  string `json:"arn,omitempty"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// IsZero reports whether no identifier is recorded.
func (r *ResourceRef) IsZero() bool {
	return r == nil || (r.ID == "" && r.ARN == "" && r.Name == "" && r.URI == "")
}

// BootstrapState is the bootstrap state document covering every environment.
type BootstrapState struct {
	SchemaVersion string                                `json:"schema_version"`
	Environments  map[string]*BootstrapEnvironmentState `json:"environments"`
}

// NewBootstrapState returns an empty document at the current schema version.
func NewBootstrapState() *BootstrapState {
	return &BootstrapState{
		SchemaVersion: BootstrapSchemaVersion,
		Environments:  make(map[string]*BootstrapEnvironmentState),
	}
}

// BootstrapEnvironmentState records the base infrastructure of one
// environment. It is written by sync only.
type BootstrapEnvironmentState struct {
	AccountID       string                 `json:"account_id"`
	Region          string                 `json:"region"`
	TemplateBucket  *ResourceRef           `json:"template_bucket,omitempty"`
	ECRRepositories map[string]ResourceRef `json:"ecr_repositories"`
	Portfolios      map[string]ResourceRef `json:"portfolios"`
	Products        map[string]ResourceRef `json:"products"`
	LaunchRole      *ResourceRef           `json:"launch_role,omitempty"`
	BootstrappedAt  *time.Time             `json:"bootstrapped_at,omitempty"`
}

// NewBootstrapEnvironmentState returns an empty environment record.
func NewBootstrapEnvironmentState() *BootstrapEnvironmentState {
	return &BootstrapEnvironmentState{
		ECRRepositories: make(map[string]ResourceRef),
		Portfolios:      make(map[string]ResourceRef),
		Products:        make(map[string]ResourceRef),
	}
}

// BucketName returns the recorded template bucket name, if any.
func (e *BootstrapEnvironmentState) BucketName() string {
	if e == nil || e.TemplateBucket == nil {
		return ""
	}
	return e.TemplateBucket.Name
}

// ProductID returns the remote registration id of a product, if recorded.
func (e *BootstrapEnvironmentState) ProductID(product string) string {
	if e == nil {
		return ""
	}
	return e.Products[product].ID
}

// normalize replaces nil maps so callers can write into them.
func (e *BootstrapEnvironmentState) normalize() {
	if e.ECRRepositories == nil {
		e.ECRRepositories = make(map[string]ResourceRef)
	}
	if e.Portfolios == nil {
		e.Portfolios = make(map[string]ResourceRef)
	}
	if e.Products == nil {
		e.Products = make(map[string]ResourceRef)
	}
}

// Normalize fills defaults after decoding a possibly partial document.
func (s *BootstrapState) Normalize() {
	if s.SchemaVersion == "" {
		s.SchemaVersion = BootstrapSchemaVersion
	}
	if s.Environments == nil {
		s.Environments = make(map[string]*BootstrapEnvironmentState)
	}
	for name, env := range s.Environments {
		if env == nil {
			env = NewBootstrapEnvironmentState()
			s.Environments[name] = env
		}
		env.normalize()
	}
}

// DeployState is the deploy state document covering every environment.
type DeployState struct {
	SchemaVersion string                             `json:"schema_version"`
	Environments  map[string]*DeployEnvironmentState `json:"environments"`
}

// NewDeployState returns an empty document at the current schema version.
func NewDeployState() *DeployState {
	return &DeployState{
		SchemaVersion: DeploySchemaVersion,
		Environments:  make(map[string]*DeployEnvironmentState),
	}
}

// Normalize fills defaults after decoding a possibly partial document.
func (s *DeployState) Normalize() {
	if s.SchemaVersion == "" {
		s.SchemaVersion = DeploySchemaVersion
	}
	if s.Environments == nil {
		s.Environments = make(map[string]*DeployEnvironmentState)
	}
	for name, env := range s.Environments {
		if env == nil {
			env = NewDeployEnvironmentState()
			s.Environments[name] = env
		}
		if env.Products == nil {
			env.Products = make(map[string]*ProductDeployState)
		}
		for product, ps := range env.Products {
			if ps == nil {
				env.Products[product] = &ProductDeployState{Outputs: map[string]string{}}
			} else if ps.Outputs == nil {
				ps.Outputs = map[string]string{}
			}
		}
	}
}

// DeployEnvironmentState maps product names to their lifecycle state.
type DeployEnvironmentState struct {
	Products map[string]*ProductDeployState `json:"products"`
}

// NewDeployEnvironmentState returns an empty environment record.
func NewDeployEnvironmentState() *DeployEnvironmentState {
	return &DeployEnvironmentState{Products: make(map[string]*ProductDeployState)}
}

// Product returns the state of a product, creating an empty entry when none
// exists yet.
func (e *DeployEnvironmentState) Product(name string) *ProductDeployState {
	ps, ok := e.Products[name]
	if !ok || ps == nil {
		ps = &ProductDeployState{Outputs: map[string]string{}}
		e.Products[name] = ps
	}
	return ps
}

// Lookup returns the state of a product without creating it.
func (e *DeployEnvironmentState) Lookup(name string) (*ProductDeployState, bool) {
	if e == nil {
		return nil, false
	}
	ps, ok := e.Products[name]
	return ps, ok && ps != nil
}

// ProductNames returns the recorded product names in sorted order.
func (e *DeployEnvironmentState) ProductNames() []string {
	names := make([]string, 0, len(e.Products))
	for name := range e.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProductDeployState is the lifecycle record of one product.
//
// A product with no Version is Unpublished, one with a Version but no
// ProvisionedProductID is Published, and one with both is Provisioned.
type ProductDeployState struct {
	Version         string     `json:"version,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	PublishedCommit string     `json:"published_commit,omitempty"`
	PublishedHash   string     `json:"published_hash,omitempty"`

	DeployedAt             *time.Time `json:"deployed_at,omitempty"`
	DeployedCommit         string     `json:"deployed_commit,omitempty"`
	ProvisionedProductID   string     `json:"provisioned_product_id,omitempty"`
	ProvisionedProductName string     `json:"provisioned_product_name,omitempty"`

	Outputs map[string]string `json:"outputs"`
}

// Phase names a product's lifecycle position.
type Phase string

const (
	PhaseUnpublished Phase = "unpublished"
	PhasePublished   Phase = "published"
	PhaseProvisioned Phase = "provisioned"
)

// Phase derives the lifecycle position from the recorded fields.
func (p *ProductDeployState) Phase() Phase {
	switch {
	case p == nil || p.Version == "":
		return PhaseUnpublished
	case p.ProvisionedProductID == "":
		return PhasePublished
	default:
		return PhaseProvisioned
	}
}

// ClearInstance forgets the live instance while keeping the published
// version.
func (p *ProductDeployState) ClearInstance() {
	p.ProvisionedProductID = ""
	p.ProvisionedProductName = ""
	p.DeployedAt = nil
	p.DeployedCommit = ""
	p.Outputs = map[string]string{}
}
