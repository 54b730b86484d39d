// Package backend defines the storage interface behind the state store and a
// registry of the available implementations.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Read when the path has never been written.
	ErrNotFound = errors.New("state not found")

	// ErrLocked is returned by Lock when another holder owns the lock.
	ErrLocked = errors.New("state is locked")
)

// StaleLockAge is how long a lock file is honoured before a new holder may
// take it over. It bounds the damage of a process killed mid-operation.
const StaleLockAge = time.Hour

// Backend stores opaque state documents addressed by slash-separated paths.
type Backend interface {
	// Type returns the registered backend name.
	Type() string

	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, data io.Reader) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)

	// Lock takes an advisory lock on path. It is a lock file stored next to
	// the state, so it only protects against other processes that also lock.
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held advisory lock.
type Lock interface {
	ID() string
	Unlock(ctx context.Context) error
	Info() LockInfo
}

// LockInfo is the metadata written into a lock file.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
}

// Stale reports whether the lock is old enough to be taken over.
func (i LockInfo) Stale(now time.Time) bool {
	return now.Sub(i.Created) >= StaleLockAge
}

// LockError reports a lock held by someone else.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%v: held by %s for %s since %s (lock id %s)",
		e.Err, e.Info.Who, e.Info.Operation, e.Info.Created.Format(time.RFC3339), e.Info.ID)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// LockPath returns the lock file path guarding a state path.
func LockPath(path string) string {
	return path + ".lock"
}

// LockObject runs the lock file protocol for backends without native
// locking: a fresh lock file rejects the claim, a missing or stale one is
// replaced by a new lock owned by the caller. The check and the write are not
// atomic, so two processes racing inside the same instant can both win.
func LockObject(ctx context.Context, b Backend, path string, info LockInfo) (Lock, error) {
	lockPath := LockPath(path)

	if r, err := b.Read(ctx, lockPath); err == nil {
		var current LockInfo
		decodeErr := json.NewDecoder(r).Decode(&current)
		r.Close()
		if decodeErr == nil && !current.Stale(time.Now()) {
			return nil, &LockError{Info: current, Err: ErrLocked}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to read lock %s: %w", lockPath, err)
	}

	info.ID = uuid.New().String()
	info.Path = path
	info.Created = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock: %w", err)
	}
	if err := b.Write(ctx, lockPath, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}

	return &objectLock{backend: b, path: lockPath, info: info}, nil
}

type objectLock struct {
	backend Backend
	path    string
	info    LockInfo
}

func (l *objectLock) ID() string {
	return l.info.ID
}

func (l *objectLock) Unlock(ctx context.Context) error {
	if err := l.backend.Delete(ctx, l.path); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (l *objectLock) Info() LockInfo {
	return l.info
}

// Config selects and configures a backend.
type Config struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config,omitempty"`
}

// Factory builds a backend from its key/value configuration.
type Factory func(config map[string]string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name. Backends call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Types returns the registered backend names in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the backend named by config.Type.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown state backend %q (available: %v)", config.Type, Types())
	}

	cfg := config.Config
	if cfg == nil {
		cfg = make(map[string]string)
	}
	return factory(cfg)
}
