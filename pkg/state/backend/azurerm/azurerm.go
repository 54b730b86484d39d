// Package azurerm implements an Azure Blob Storage state backend.
package azurerm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/davidthor/scdctl/pkg/state/backend"
)

func init() {
	backend.Register("azurerm", NewBackend)
}

// Backend stores state blobs in a storage account container.
type Backend struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewBackend creates an Azure backend. Recognised keys: storage_account_name
// and container_name (required), key (prefix), endpoint, and one of
// access_key, sas_token or connection_string. Without an explicit secret the
// default Azure credential chain is used.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	account := cfg["storage_account_name"]
	if account == "" {
		return nil, fmt.Errorf("azurerm backend requires 'storage_account_name' configuration")
	}
	containerName := cfg["container_name"]
	if containerName == "" {
		return nil, fmt.Errorf("azurerm backend requires 'container_name' configuration")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	if endpoint := cfg["endpoint"]; endpoint != "" {
		serviceURL = endpoint
	}

	client, err := newClient(account, serviceURL, cfg)
	if err != nil {
		return nil, err
	}

	return &Backend{
		client:    client,
		container: containerName,
		prefix:    strings.Trim(cfg["key"], "/"),
	}, nil
}

func newClient(account, serviceURL string, cfg map[string]string) (*azblob.Client, error) {
	switch {
	case cfg["access_key"] != "":
		cred, err := azblob.NewSharedKeyCredential(account, cfg["access_key"])
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)

	case cfg["sas_token"] != "":
		sep := "?"
		if strings.Contains(serviceURL, "?") {
			sep = "&"
		}
		return azblob.NewClientWithNoCredential(serviceURL+sep+strings.TrimPrefix(cfg["sas_token"], "?"), nil)

	case cfg["connection_string"] != "":
		return azblob.NewClientFromConnectionString(cfg["connection_string"], nil)

	default:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default Azure credential: %w", err)
		}
		return azblob.NewClient(serviceURL, cred, nil)
	}
}

func (b *Backend) Type() string {
	return "azurerm"
}

func (b *Backend) Read(ctx context.Context, statePath string) (io.ReadCloser, error) {
	name := b.fullPath(statePath)
	resp, err := b.client.DownloadStream(ctx, b.container, name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read azure://%s/%s: %w", b.container, name, err)
	}
	return resp.Body, nil
}

func (b *Backend) Write(ctx context.Context, statePath string, data io.Reader) error {
	name := b.fullPath(statePath)

	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	contentType := "application/json"
	_, err = b.client.UploadBuffer(ctx, b.container, name, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to write azure://%s/%s: %w", b.container, name, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, statePath string) error {
	name := b.fullPath(statePath)
	if _, err := b.client.DeleteBlob(ctx, b.container, name, nil); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete azure://%s/%s: %w", b.container, name, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	full := b.fullPath(prefix)
	pager := b.client.NewListBlobsFlatPager(b.container, &container.ListBlobsFlatOptions{Prefix: &full})

	var paths []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list azure://%s: %w", b.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || strings.HasSuffix(*item.Name, ".lock") {
				continue
			}
			paths = append(paths, b.relPath(*item.Name))
		}
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, statePath string) (bool, error) {
	blobClient := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(b.fullPath(statePath))
	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, statePath string, info backend.LockInfo) (backend.Lock, error) {
	return backend.LockObject(ctx, b, statePath, info)
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

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

var _ backend.Backend = (*Backend)(nil)
