// Package oci reads the container registries declared by the project.
package oci

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/davidthor/scdctl/pkg/cloud"
)

// Client lists tags in a registry.
type Client struct {
	auth      authn.Authenticator
	insecure  bool
	transport http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithInsecure talks plain HTTP to the registry. Only local registries
// should need it.
func WithInsecure() Option {
	return func(c *Client) { c.insecure = true }
}

// WithTransport sets the HTTP transport used for registry calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// NewClient creates a client that authenticates with auth. A nil auth
// uses anonymous access.
func NewClient(auth authn.Authenticator, opts ...Option) *Client {
	if auth == nil {
		auth = authn.Anonymous
	}
	c := &Client{auth: auth}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tags returns the sorted tags of repository, given as host/name.
func (c *Client) Tags(ctx context.Context, repository string) ([]string, error) {
	var nameOpts []name.Option
	if c.insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	repo, err := name.NewRepository(repository, nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid repository: %w", err)
	}

	remoteOpts := []remote.Option{remote.WithAuth(c.auth), remote.WithContext(ctx)}
	if c.transport != nil {
		remoteOpts = append(remoteOpts, remote.WithTransport(c.transport))
	}
	tags, err := remote.List(repo, remoteOpts...)
	if err != nil {
		return nil, registryError(repository, err)
	}
	sort.Strings(tags)
	return tags, nil
}

// ECRLogin exchanges an ECR authorization token for basic credentials. It
// returns the authenticator and the registry host the token is valid for.
func ECRLogin(ctx context.Context, api cloud.ECRAPI) (authn.Authenticator, string, error) {
	out, err := api.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get registry authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return nil, "", fmt.Errorf("registry returned no authorization data")
	}
	data := out.AuthorizationData[0]

	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode registry authorization token: %w", err)
	}
	user, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, "", fmt.Errorf("malformed registry authorization token")
	}

	host := aws.ToString(data.ProxyEndpoint)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")

	return &authn.Basic{Username: user, Password: password}, host, nil
}

// registryError translates OCI registry errors into user-friendly messages.
func registryError(repository string, err error) error {
	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		for _, diagnostic := range transportErr.Errors {
			switch diagnostic.Code {
			case transport.NameUnknownErrorCode:
				return fmt.Errorf("repository not found: %s does not exist in the registry", repository)
			case transport.UnauthorizedErrorCode:
				return fmt.Errorf("authentication required: credentials were rejected for %s", repository)
			case transport.DeniedErrorCode:
				return fmt.Errorf("access denied: you don't have permission to list %s", repository)
			}
		}

		if transportErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("repository not found: %s does not exist in the registry", repository)
		}
	}

	return fmt.Errorf("failed to list tags: %w", err)
}
