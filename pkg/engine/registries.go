package engine

import (
	"context"
	"fmt"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/oci"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// RegistryTags lists the tags of one container registry. Err is set when
// the registry could not be read; the other registries are still listed.
type RegistryTags struct {
	Name string
	URI  string
	Tags []string
	Err  error
}

// Registries lists the tags of every container registry declared in
// bootstrap.yaml or recorded by sync for the environment.
func (e *Engine) Registries(ctx context.Context, environment string) ([]RegistryTags, error) {
	boot, err := e.state.Bootstrap(ctx, environment)
	if err != nil {
		return nil, err
	}
	if boot == nil {
		boot = types.NewBootstrapEnvironmentState()
	}
	repos := e.repositories(boot)
	if len(repos) == 0 {
		return nil, nil
	}

	clients, _, err := e.clients(ctx, environment)
	if err != nil {
		return nil, err
	}
	auth, host, err := oci.ECRLogin(ctx, clients.ECR)
	if err != nil {
		return nil, errors.CapabilityError("registry login", "environment "+environment, err)
	}
	client := oci.NewClient(auth, e.registryOpts...)

	result := make([]RegistryTags, 0, len(repos))
	for _, repo := range repos {
		uri := host + "/" + repo
		tags, err := client.Tags(ctx, uri)
		if err != nil {
			e.warn(fmt.Sprintf("list tags of %s", repo))(err)
		}
		result = append(result, RegistryTags{Name: repo, URI: uri, Tags: tags, Err: err})
	}
	return result, nil
}
