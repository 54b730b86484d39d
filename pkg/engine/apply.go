package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"
	"github.com/google/uuid"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/names"
	"github.com/davidthor/scdctl/pkg/resolver"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// StackARNOutput is reported by every provisioned instance and is not a
// product output.
const StackARNOutput = "CloudformationStackARN"

// ApplyOptions configures an apply operation.
type ApplyOptions struct {
	Environment string

	// Products to apply. Empty applies every catalog product.
	Products []string

	DryRun bool
}

// AppliedProduct describes one provisioned or updated instance.
type AppliedProduct struct {
	Product    string
	Version    string
	InstanceID string
	Name       string
	Updated    bool
	Outputs    map[string]string
}

// ApplyResult contains the results of an apply.
type ApplyResult struct {
	Order   []string
	Applied []AppliedProduct
}

// Apply provisions the published version of each product in dependency
// order, updating instances that already exist. Every product's published
// state and every out-of-batch dependency is checked before the first
// remote call. Deploy state is saved after each product, so a failure
// leaves earlier products recorded.
func (e *Engine) Apply(ctx context.Context, opts ApplyOptions) (*ApplyResult, error) {
	g, boot, err := e.validate(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}
	order, err := g.Order(opts.Products)
	if err != nil {
		return nil, err
	}

	unlock, err := e.acquire(ctx, opts.Environment, "apply", opts.DryRun)
	if err != nil {
		return nil, err
	}
	defer unlock()

	deploy, err := e.state.Deploy(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}
	if err := resolver.CheckBatch(opts.Environment, order, e.catalog.Products, deploy); err != nil {
		return nil, err
	}
	for _, p := range order {
		if boot.ProductID(p) == "" {
			return nil, errors.StateError(
				fmt.Sprintf("missing product id for %q in bootstrap state (run `scdctl sync -e %s`)", p, opts.Environment),
				map[string]interface{}{"product": p, "environment": opts.Environment},
			)
		}
	}

	result := &ApplyResult{Order: order}

	if opts.DryRun {
		for _, p := range order {
			e.planApply(opts.Environment, p, deploy)
		}
		return result, nil
	}

	clients, _, err := e.clients(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}

	for _, p := range order {
		applied, err := e.applyProduct(ctx, clients.ServiceCatalog, opts.Environment, p, boot.ProductID(p), deploy)
		if err != nil {
			return result, err
		}
		if err := e.state.SaveDeployEnvironment(ctx, opts.Environment, deploy); err != nil {
			return result, err
		}
		e.log.Info().Str("product", p).Str("instance", applied.InstanceID).Bool("updated", applied.Updated).Msg("applied")
		e.report("[success] %s (%s)", applied.Name, applied.InstanceID)
		result.Applied = append(result.Applied, *applied)
	}
	return result, nil
}

// planApply prints what applying one product would do. Parameters that
// depend on products earlier in the same batch cannot be resolved yet.
func (e *Engine) planApply(environment, product string, deploy *types.DeployEnvironmentState) {
	ps, _ := deploy.Lookup(product)
	fmt.Fprintf(e.out, "Applying %s (version %s)\n", product, ps.Version)

	if ps.ProvisionedProductID != "" {
		e.intend("update provisioned product %s", ps.ProvisionedProductID)
	} else {
		e.intend("provision %s", names.Instance(environment, product))
	}

	params, err := resolver.ForEnvironment(environment, product, e.catalog.Products[product], deploy)
	if err != nil {
		e.intend("parameters resolved after dependencies are applied")
		return
	}
	for _, param := range params {
		e.intend("  %s=%s", param.Key, param.Value)
	}
}

func (e *Engine) applyProduct(ctx context.Context, sc cloud.ServiceCatalogAPI, environment, product, productID string, deploy *types.DeployEnvironmentState) (*AppliedProduct, error) {
	ps := deploy.Product(product)
	fmt.Fprintf(e.out, "Applying %s (version %s)\n", product, ps.Version)

	artifactID, err := findArtifact(ctx, sc, product, productID, ps.Version)
	if err != nil {
		return nil, err
	}
	pathID, err := firstLaunchPath(ctx, sc, product, productID)
	if err != nil {
		return nil, err
	}

	params, err := resolver.ForEnvironment(environment, product, e.catalog.Products[product], deploy)
	if err != nil {
		return nil, err
	}

	name := names.Instance(environment, product)
	instanceID := ps.ProvisionedProductID
	if instanceID == "" {
		// A previous run may have provisioned the instance and failed before
		// recording it.
		if instanceID, err = findInstance(ctx, sc, name); err != nil {
			return nil, err
		}
		if instanceID != "" {
			e.report("[recovered] %s (%s)", name, instanceID)
		}
	}

	var record *sctypes.RecordDetail
	updated := instanceID != ""
	if updated {
		var update []sctypes.UpdateProvisioningParameter
		for _, p := range params {
			update = append(update, sctypes.UpdateProvisioningParameter{Key: aws.String(p.Key), Value: aws.String(p.Value)})
		}
		e.report("[update] %s (%s)", name, instanceID)
		out, err := sc.UpdateProvisionedProduct(ctx, &servicecatalog.UpdateProvisionedProductInput{
			ProvisionedProductId:   aws.String(instanceID),
			ProductId:              aws.String(productID),
			ProvisioningArtifactId: aws.String(artifactID),
			PathId:                 aws.String(pathID),
			ProvisioningParameters: update,
			UpdateToken:            aws.String(uuid.New().String()),
		})
		if err != nil {
			return nil, errors.CapabilityError("update", "provisioned product "+name, err)
		}
		record = out.RecordDetail
	} else {
		var provision []sctypes.ProvisioningParameter
		for _, p := range params {
			provision = append(provision, sctypes.ProvisioningParameter{Key: aws.String(p.Key), Value: aws.String(p.Value)})
		}
		e.report("[provision] %s", name)
		out, err := sc.ProvisionProduct(ctx, &servicecatalog.ProvisionProductInput{
			ProductId:              aws.String(productID),
			ProvisioningArtifactId: aws.String(artifactID),
			PathId:                 aws.String(pathID),
			ProvisionedProductName: aws.String(name),
			ProvisioningParameters: provision,
			ProvisionToken:         aws.String(uuid.New().String()),
		})
		if err != nil {
			return nil, errors.CapabilityError("provision", name, err)
		}
		record = out.RecordDetail
	}
	if record == nil || record.RecordId == nil {
		return nil, errors.CapabilityError("provision", name, fmt.Errorf("no record returned"))
	}

	final, err := e.waitRecord(ctx, sc, aws.ToString(record.RecordId))
	if err != nil {
		return nil, err
	}

	if instanceID == "" {
		instanceID = aws.ToString(final.ProvisionedProductId)
	}
	if instanceID == "" {
		instanceID = aws.ToString(record.ProvisionedProductId)
	}
	if instanceID == "" {
		if instanceID, err = findInstance(ctx, sc, name); err != nil {
			return nil, err
		}
	}
	if instanceID == "" {
		return nil, errors.StateError(
			fmt.Sprintf("provisioned product %s succeeded but its id could not be determined", name),
			map[string]interface{}{"product": product, "record_id": aws.ToString(record.RecordId)},
		)
	}

	outputs, err := instanceOutputs(ctx, sc, instanceID)
	_ = errors.PolicyBestEffort.Handle(err, e.warn("read outputs of "+name))

	now := e.now().UTC()
	ps.ProvisionedProductID = instanceID
	ps.ProvisionedProductName = name
	ps.DeployedAt = &now
	ps.DeployedCommit = e.commit
	if outputs != nil {
		ps.Outputs = outputs
	}

	return &AppliedProduct{
		Product:    product,
		Version:    ps.Version,
		InstanceID: instanceID,
		Name:       name,
		Updated:    updated,
		Outputs:    ps.Outputs,
	}, nil
}

// findArtifact returns the id of the provisioning artifact named version.
// When several share the name, the most recently created wins.
func findArtifact(ctx context.Context, sc cloud.ServiceCatalogAPI, product, productID, version string) (string, error) {
	out, err := sc.ListProvisioningArtifacts(ctx, &servicecatalog.ListProvisioningArtifactsInput{ProductId: aws.String(productID)})
	if err != nil {
		return "", errors.CapabilityError("list provisioning artifacts of", product, err)
	}

	var match *sctypes.ProvisioningArtifactDetail
	for i := range out.ProvisioningArtifactDetails {
		a := &out.ProvisioningArtifactDetails[i]
		if aws.ToString(a.Name) != version {
			continue
		}
		if match == nil || aws.ToTime(a.CreatedTime).After(aws.ToTime(match.CreatedTime)) {
			match = a
		}
	}
	if match == nil {
		return "", errors.StateError(
			fmt.Sprintf("provisioning artifact not found for version %s of %s (run `scdctl deploy publish`)", version, product),
			map[string]interface{}{"product": product, "version": version},
		)
	}
	return aws.ToString(match.Id), nil
}

func firstLaunchPath(ctx context.Context, sc cloud.ServiceCatalogAPI, product, productID string) (string, error) {
	out, err := sc.ListLaunchPaths(ctx, &servicecatalog.ListLaunchPathsInput{ProductId: aws.String(productID)})
	if err != nil {
		return "", errors.CapabilityError("list launch paths of", product, err)
	}
	if len(out.LaunchPathSummaries) == 0 {
		return "", errors.StateError(
			fmt.Sprintf("no launch paths found for %s (check portfolio association/access)", product),
			map[string]interface{}{"product": product},
		)
	}
	return aws.ToString(out.LaunchPathSummaries[0].Id), nil
}

// findInstance returns the id of the provisioned product with exactly the
// given name, or "" when there is none.
func findInstance(ctx context.Context, sc cloud.ServiceCatalogAPI, name string) (string, error) {
	out, err := sc.SearchProvisionedProducts(ctx, &servicecatalog.SearchProvisionedProductsInput{
		Filters: map[string][]string{
			string(sctypes.ProvisionedProductViewFilterBySearchQuery): {"name:" + name},
		},
	})
	if err != nil {
		return "", errors.CapabilityError("search provisioned products for", name, err)
	}
	for _, pp := range out.ProvisionedProducts {
		if aws.ToString(pp.Name) == name {
			return aws.ToString(pp.Id), nil
		}
	}
	return "", nil
}

func instanceOutputs(ctx context.Context, sc cloud.ServiceCatalogAPI, instanceID string) (map[string]string, error) {
	out, err := sc.GetProvisionedProductOutputs(ctx, &servicecatalog.GetProvisionedProductOutputsInput{
		ProvisionedProductId: aws.String(instanceID),
	})
	if err != nil {
		return nil, errors.CapabilityError("get outputs of", "provisioned product "+instanceID, err)
	}
	outputs := make(map[string]string, len(out.Outputs))
	for _, o := range out.Outputs {
		key := aws.ToString(o.OutputKey)
		if key == "" || key == StackARNOutput {
			continue
		}
		outputs[key] = aws.ToString(o.OutputValue)
	}
	return outputs, nil
}
