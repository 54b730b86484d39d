// Package gcs implements a Google Cloud Storage state backend.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/davidthor/scdctl/pkg/state/backend"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

func init() {
	backend.Register("gcs", NewBackend)
}

// Backend stores state objects in a GCS bucket.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewBackend creates a GCS backend. Recognised keys: bucket (required),
// prefix, credentials (file), credentials_json and endpoint (emulator).
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("gcs backend requires 'bucket' configuration")
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg["prefix"], "/"),
	}, nil
}

func clientOptions(cfg map[string]string) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	file, inline := cfg["credentials"], cfg["credentials_json"]
	if file != "" && inline != "" {
		return nil, fmt.Errorf("gcs backend accepts only one of 'credentials' and 'credentials_json'")
	}
	if file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if inline != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(inline)))
	}
	if endpoint := cfg["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	return opts, nil
}

func (b *Backend) Type() string {
	return "gcs"
}

func (b *Backend) object(statePath string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.fullPath(statePath))
}

func (b *Backend) Read(ctx context.Context, statePath string) (io.ReadCloser, error) {
	r, err := b.object(statePath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", b.bucket, b.fullPath(statePath), err)
	}
	return r, nil
}

func (b *Backend) Write(ctx context.Context, statePath string, data io.Reader) error {
	w := b.object(statePath).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", b.bucket, b.fullPath(statePath), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", b.bucket, b.fullPath(statePath), err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, statePath string) error {
	err := b.object(statePath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", b.bucket, b.fullPath(statePath), err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.fullPath(prefix)})

	var paths []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s: %w", b.bucket, err)
		}
		if strings.HasSuffix(attrs.Name, ".lock") {
			continue
		}
		paths = append(paths, b.relPath(attrs.Name))
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, statePath string) (bool, error) {
	if _, err := b.object(statePath).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, statePath string, info backend.LockInfo) (backend.Lock, error) {
	return backend.LockObject(ctx, b, statePath, info)
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) fullPath(statePath string) string {
	if b.prefix == "" {
		return statePath
	}
	return path.Join(b.prefix, statePath)
}

func (b *Backend) relPath(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

var _ backend.Backend = (*Backend)(nil)
