// Package state provides the environment state store: load and save of the
// bootstrap and deploy documents over a pluggable storage backend.
//
// The store does not serialize callers. Commands that mutate an environment
// take the backend's advisory lock through Lock for their whole duration.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/user"
	"path"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/state/backend"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// Manager provides environment-scoped state operations.
type Manager interface {
	// Whole documents
	LoadBootstrap(ctx context.Context) (*types.BootstrapState, error)
	SaveBootstrap(ctx context.Context, state *types.BootstrapState) error
	LoadDeploy(ctx context.Context) (*types.DeployState, error)
	SaveDeploy(ctx context.Context, state *types.DeployState) error

	// Bootstrap returns the environment's bootstrap record, or nil when the
	// environment has never been synced.
	Bootstrap(ctx context.Context, environment string) (*types.BootstrapEnvironmentState, error)
	SaveBootstrapEnvironment(ctx context.Context, environment string, state *types.BootstrapEnvironmentState) error

	// Deploy returns the environment's deploy record, empty when nothing was
	// ever published.
	Deploy(ctx context.Context, environment string) (*types.DeployEnvironmentState, error)
	SaveDeployEnvironment(ctx context.Context, environment string, state *types.DeployEnvironmentState) error

	// ForgetEnvironment removes the environment from both documents.
	ForgetEnvironment(ctx context.Context, environment string) error

	// Locking
	Lock(ctx context.Context, scope LockScope) (backend.Lock, error)

	// Backend info
	Backend() backend.Backend
}

// Files names the two state documents within the backend.
type Files struct {
	Bootstrap string
	Deploy    string
}

// LockScope defines what to lock.
type LockScope struct {
	Environment string
	Operation   string
	Who         string
}

type manager struct {
	backend backend.Backend
	files   Files
}

// NewManager creates a state manager. Empty file names fall back to
// .bootstrap-state.json and .deploy-state.json.
func NewManager(b backend.Backend, files Files) Manager {
	if files.Bootstrap == "" {
		files.Bootstrap = ".bootstrap-state.json"
	}
	if files.Deploy == "" {
		files.Deploy = ".deploy-state.json"
	}
	return &manager{backend: b, files: files}
}

// NewManagerFromConfig creates a state manager from backend configuration.
func NewManagerFromConfig(config backend.Config, files Files) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, errors.BackendError(config.Type, "initialize", err)
	}
	return NewManager(b, files), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

func (m *manager) LoadBootstrap(ctx context.Context) (*types.BootstrapState, error) {
	st, err := readJSON[types.BootstrapState](ctx, m.backend, m.files.Bootstrap)
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return types.NewBootstrapState(), nil
		}
		return nil, err
	}
	st.Normalize()
	return st, nil
}

func (m *manager) SaveBootstrap(ctx context.Context, st *types.BootstrapState) error {
	return writeJSON(ctx, m.backend, m.files.Bootstrap, st)
}

func (m *manager) LoadDeploy(ctx context.Context) (*types.DeployState, error) {
	st, err := readJSON[types.DeployState](ctx, m.backend, m.files.Deploy)
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return types.NewDeployState(), nil
		}
		return nil, err
	}
	st.Normalize()
	return st, nil
}

func (m *manager) SaveDeploy(ctx context.Context, st *types.DeployState) error {
	return writeJSON(ctx, m.backend, m.files.Deploy, st)
}

func (m *manager) Bootstrap(ctx context.Context, environment string) (*types.BootstrapEnvironmentState, error) {
	doc, err := m.LoadBootstrap(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Environments[environment], nil
}

// SaveBootstrapEnvironment replaces one environment's record and leaves the
// others untouched.
func (m *manager) SaveBootstrapEnvironment(ctx context.Context, environment string, st *types.BootstrapEnvironmentState) error {
	doc, err := m.LoadBootstrap(ctx)
	if err != nil {
		return err
	}
	doc.Environments[environment] = st
	return m.SaveBootstrap(ctx, doc)
}

func (m *manager) Deploy(ctx context.Context, environment string) (*types.DeployEnvironmentState, error) {
	doc, err := m.LoadDeploy(ctx)
	if err != nil {
		return nil, err
	}
	env, ok := doc.Environments[environment]
	if !ok {
		return types.NewDeployEnvironmentState(), nil
	}
	return env, nil
}

// SaveDeployEnvironment replaces one environment's record and leaves the
// others untouched.
func (m *manager) SaveDeployEnvironment(ctx context.Context, environment string, st *types.DeployEnvironmentState) error {
	doc, err := m.LoadDeploy(ctx)
	if err != nil {
		return err
	}
	doc.Environments[environment] = st
	return m.SaveDeploy(ctx, doc)
}

func (m *manager) ForgetEnvironment(ctx context.Context, environment string) error {
	boot, err := m.LoadBootstrap(ctx)
	if err != nil {
		return err
	}
	if _, ok := boot.Environments[environment]; ok {
		delete(boot.Environments, environment)
		if err := m.SaveBootstrap(ctx, boot); err != nil {
			return err
		}
	}

	deploy, err := m.LoadDeploy(ctx)
	if err != nil {
		return err
	}
	if _, ok := deploy.Environments[environment]; ok {
		delete(deploy.Environments, environment)
		if err := m.SaveDeploy(ctx, deploy); err != nil {
			return err
		}
	}
	return nil
}

// Locking

func (m *manager) Lock(ctx context.Context, scope LockScope) (backend.Lock, error) {
	who := scope.Who
	if who == "" {
		who = currentUser()
	}

	lock, err := m.backend.Lock(ctx, lockPath(scope.Environment), backend.LockInfo{
		Who:       who,
		Operation: scope.Operation,
	})
	if err != nil {
		var lockErr *backend.LockError
		if stderrors.As(err, &lockErr) {
			return nil, errors.StateLocked(errors.LockInfo{
				ID:        lockErr.Info.ID,
				Path:      lockErr.Info.Path,
				Who:       lockErr.Info.Who,
				Operation: lockErr.Info.Operation,
				Created:   lockErr.Info.Created,
			}).WithDetail("environment", scope.Environment)
		}
		return nil, errors.BackendError(m.backend.Type(), "lock", err)
	}
	return lock, nil
}

func lockPath(environment string) string {
	return path.Join("locks", environment)
}

func currentUser() string {
	host, _ := os.Hostname()
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if host == "" {
		return name
	}
	return name + "@" + host
}

// JSON helpers

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return nil, err
		}
		return nil, errors.BackendError(b.Type(), "read "+p, err)
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, errors.ParseError(p, err)
	}
	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p, err)
	}
	content = append(content, '\n')

	if err := b.Write(ctx, p, bytes.NewReader(content)); err != nil {
		return errors.BackendError(b.Type(), "write "+p, err)
	}
	return nil
}
