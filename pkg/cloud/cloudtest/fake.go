// Package cloudtest provides an in-memory implementation of every cloud
// interface. It keeps just enough state to behave like the real services for
// scdctl's call patterns and records every call so tests can assert on which
// remote mutations happened.
package cloudtest

import (
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"

	"github.com/davidthor/scdctl/pkg/cloud"
)

// Call is one recorded API call.
type Call struct {
	Service   string
	Operation string
	Mutating  bool
}

func (c Call) String() string {
	return c.Service + ":" + c.Operation
}

// Bucket is a fake S3 bucket.
type Bucket struct {
	Region     string
	Versioning bool
	Encryption string
	Tags       map[string]string
	Objects    map[string][]byte
}

// Repository is a fake container registry.
type Repository struct {
	Name       string
	ARN        string
	URI        string
	ScanOnPush bool
	Mutability string
	Tags       map[string]string
}

// Role is a fake IAM role.
type Role struct {
	Name     string
	ARN      string
	Trust    string
	Policies []string
	Tags     map[string]string
}

// Portfolio is a fake catalog portfolio.
type Portfolio struct {
	ID           string
	ARN          string
	DisplayName  string
	ProviderName string
	Principals   []string
	Tags         map[string]string
}

// Artifact is a fake provisioning artifact.
type Artifact struct {
	ID          string
	Name        string
	TemplateURL string
	Created     time.Time
}

// Constraint is a fake launch constraint.
type Constraint struct {
	ID          string
	PortfolioID string
	Type        string
	Parameters  string
}

// Product is a fake catalog product registration.
type Product struct {
	ID          string
	ARN         string
	Name        string
	Owner       string
	Artifacts   []*Artifact
	Portfolios  []string
	Constraints []Constraint
	Tags        map[string]string
}

// Instance is a fake provisioned product.
type Instance struct {
	ID         string
	Name       string
	ProductID  string
	ArtifactID string
	Parameters map[string]string
	Outputs    map[string]string
	Updates    int
}

// Record is a fake asynchronous operation record.
type Record struct {
	ID         string
	Type       string
	InstanceID string
	Polls      int
}

// Fake implements every interface in package cloud against in-memory state.
// The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	AccountID string
	Region    string

	Buckets      map[string]*Bucket
	Repositories map[string]*Repository
	Roles        map[string]*Role
	Portfolios   map[string]*Portfolio
	Products     map[string]*Product
	Instances    map[string]*Instance
	Records      map[string]*Record

	// RecordStatuses is the sequence of statuses a record reports on
	// successive DescribeRecord calls; the last entry repeats. Empty means
	// every record succeeds on the first poll.
	RecordStatuses []string

	// Outputs are the stack outputs an instance reports, keyed by instance
	// name. The catalog service's own stack reference is always added.
	Outputs map[string]map[string]string

	// Errors makes the named operation fail with the given error.
	Errors map[string]error

	// RegistryEndpoint overrides the proxy endpoint returned with registry
	// authorization tokens.
	RegistryEndpoint string

	calls []Call
	seq   int
}

// New returns an empty fake account.
func New(accountID, region string) *Fake {
	return &Fake{
		AccountID:    accountID,
		Region:       region,
		Buckets:      make(map[string]*Bucket),
		Repositories: make(map[string]*Repository),
		Roles:        make(map[string]*Role),
		Portfolios:   make(map[string]*Portfolio),
		Products:     make(map[string]*Product),
		Instances:    make(map[string]*Instance),
		Records:      make(map[string]*Record),
		Outputs:      make(map[string]map[string]string),
		Errors:       make(map[string]error),
	}
}

// Clients returns cloud.Clients whose every service is backed by f.
func (f *Fake) Clients() *cloud.Clients {
	return &cloud.Clients{
		S3:             f,
		ECR:            f,
		IAM:            f,
		STS:            f,
		ServiceCatalog: f,
		Region:         f.Region,
	}
}

// Calls returns every recorded call in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Mutations returns the recorded calls that change remote state.
func (f *Fake) Mutations() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Mutating {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times the operation was called.
func (f *Fake) Count(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls and keeps the fake's state.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// InstanceByName returns the provisioned product with the given name.
func (f *Fake) InstanceByName(name string) *Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instanceByName(name)
}

// ProductByName returns the product registration with the given name.
func (f *Fake) ProductByName(name string) *Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Products {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// begin records a call and returns the injected error for it, if any. The
// caller must hold f.mu.
func (f *Fake) begin(service, operation string, mutating bool) error {
	f.calls = append(f.calls, Call{Service: service, Operation: operation, Mutating: mutating})
	return f.Errors[operation]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%04d", prefix, f.seq)
}

func (f *Fake) instanceByName(name string) *Instance {
	for _, inst := range f.Instances {
		if inst.Name == name {
			return inst
		}
	}
	return nil
}

func apiError(code, format string, args ...interface{}) error {
	return &smithy.GenericAPIError{Code: code, Message: fmt.Sprintf(format, args...), Fault: smithy.FaultClient}
}

func readAll(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func (f *Fake) authorizationToken() (token, endpoint string) {
	token = base64.StdEncoding.EncodeToString([]byte("AWS:fake-token"))
	endpoint = fmt.Sprintf("https://%s.dkr.ecr.%s.amazonaws.com", f.AccountID, f.Region)
	if f.RegistryEndpoint != "" {
		endpoint = f.RegistryEndpoint
	}
	return token, endpoint
}

func matchesAny(s string, queries []string) bool {
	for _, q := range queries {
		if strings.Contains(s, q) {
			return true
		}
	}
	return false
}

func str(s string) *string {
	return aws.String(s)
}
