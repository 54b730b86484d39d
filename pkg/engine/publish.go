package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"
	"github.com/google/uuid"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/names"
	"github.com/davidthor/scdctl/pkg/project"
)

// TemplateFile is the template each product directory must contain.
const TemplateFile = project.TemplateFile

// PublishOptions configures a publish operation.
type PublishOptions struct {
	Environment string

	// Products to publish. Empty publishes every catalog product.
	Products []string

	DryRun bool

	// Force publishes even when the generated version label equals the
	// product's recorded version.
	Force bool
}

// PublishedVersion describes one uploaded template version.
type PublishedVersion struct {
	Product     string
	Version     string
	ArtifactID  string
	TemplateURL string
	Hash        string
}

// PublishResult contains the results of a publish.
type PublishResult struct {
	Version   string
	Published []PublishedVersion
}

// TemplatePath returns the template file of a catalog product.
func (e *Engine) TemplatePath(product string) string {
	return filepath.Join(e.productsDir, e.catalog.Products[product].Path, TemplateFile)
}

// Publish uploads each product's template and registers it as a new
// provisioning artifact. Every product in the batch gets the same version
// label. Deploy state is saved after each product.
func (e *Engine) Publish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	_, boot, err := e.validate(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}
	products, err := e.selectProducts(opts.Products)
	if err != nil {
		return nil, err
	}

	unlock, err := e.acquire(ctx, opts.Environment, "publish", opts.DryRun)
	if err != nil {
		return nil, err
	}
	defer unlock()

	deploy, err := e.state.Deploy(ctx, opts.Environment)
	if err != nil {
		return nil, err
	}

	version := names.VersionLabel(e.catalog.Settings.VersionFormat, e.now())

	templates := make(map[string][]byte, len(products))
	for _, p := range products {
		if boot.ProductID(p) == "" {
			return nil, errors.StateError(
				fmt.Sprintf("missing product id for %q in bootstrap state (run `scdctl sync -e %s`)", p, opts.Environment),
				map[string]interface{}{"product": p, "environment": opts.Environment},
			)
		}
		if ps, ok := deploy.Lookup(p); ok && ps.Version == version && !opts.Force {
			return nil, errors.StateError(
				fmt.Sprintf("%s is already published as version %s; retry after the version label changes or pass --force", p, version),
				map[string]interface{}{"product": p, "version": version},
			)
		}
		body, err := os.ReadFile(e.TemplatePath(p))
		if err != nil {
			return nil, errors.ConfigurationError(fmt.Sprintf("failed to read template for %s", p), err).
				WithDetail("product", p)
		}
		templates[p] = body
	}

	region := boot.Region
	if region == "" {
		if profile, err := e.profile(opts.Environment); err == nil {
			region = profile.AWSRegion
		}
	}
	bucket := boot.BucketName()

	var clients *cloud.Clients
	if !opts.DryRun {
		if clients, _, err = e.clients(ctx, opts.Environment); err != nil {
			return nil, err
		}
	}

	result := &PublishResult{Version: version}
	for _, p := range products {
		productID := boot.ProductID(p)
		body := templates[p]
		sum := sha256.Sum256(body)
		key := names.TemplateKey(p, version)
		pv := PublishedVersion{
			Product:     p,
			Version:     version,
			TemplateURL: names.TemplateURL(bucket, region, key),
			Hash:        hex.EncodeToString(sum[:]),
		}

		fmt.Fprintf(e.out, "Publishing %s as version %s\n", p, version)
		if opts.DryRun {
			e.intend("upload s3://%s/%s", bucket, key)
			e.intend("create provisioning artifact %s for product %s", version, productID)
			result.Published = append(result.Published, pv)
			continue
		}

		if _, err := clients.S3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/x-yaml"),
		}); err != nil {
			return result, errors.CapabilityError("upload", "template s3://"+bucket+"/"+key, err)
		}
		e.log.Info().Str("product", p).Str("key", key).Msg("uploaded template")

		out, err := clients.ServiceCatalog.CreateProvisioningArtifact(ctx, &servicecatalog.CreateProvisioningArtifactInput{
			ProductId: aws.String(productID),
			Parameters: &sctypes.ProvisioningArtifactProperties{
				Name:        aws.String(version),
				Description: aws.String("Version " + version),
				Type:        sctypes.ProvisioningArtifactTypeCloudFormationTemplate,
				Info:        map[string]string{"LoadTemplateFromURL": pv.TemplateURL},
			},
			IdempotencyToken: aws.String(uuid.New().String()),
		})
		if err != nil {
			return result, errors.CapabilityError("create provisioning artifact", p+" "+version, err)
		}
		if out.ProvisioningArtifactDetail != nil {
			pv.ArtifactID = aws.ToString(out.ProvisioningArtifactDetail.Id)
		}

		now := e.now().UTC()
		ps := deploy.Product(p)
		ps.Version = version
		ps.PublishedAt = &now
		ps.PublishedCommit = e.commit
		ps.PublishedHash = pv.Hash
		if err := e.state.SaveDeployEnvironment(ctx, opts.Environment, deploy); err != nil {
			return result, err
		}
		e.log.Info().Str("product", p).Str("version", version).Str("artifact", pv.ArtifactID).Msg("published")
		e.report("[success] %s %s (%s)", p, version, pv.ArtifactID)
		result.Published = append(result.Published, pv)
	}

	return result, nil
}
