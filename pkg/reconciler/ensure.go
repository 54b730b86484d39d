package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"
	"github.com/google/uuid"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/names"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
	"github.com/davidthor/scdctl/pkg/state/types"
)

// LaunchPolicies are attached to every launch role.
var LaunchPolicies = []string{
	"arn:aws:iam::aws:policy/AWSCloudFormationFullAccess",
	"arn:aws:iam::aws:policy/AmazonS3FullAccess",
	"arn:aws:iam::aws:policy/AmazonEC2FullAccess",
	"arn:aws:iam::aws:policy/IAMFullAccess",
}

// ProductKeyTag records the catalog key on each product registration.
const ProductKeyTag = "ProductKey"

// PlaceholderTemplate is registered as a product's first artifact so the
// product can exist before anything has been published.
const PlaceholderTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Description: Placeholder template - will be replaced on first publish

Resources:
  PlaceholderWaitHandle:
    Type: AWS::CloudFormation::WaitConditionHandle

Outputs:
  Status:
    Description: Placeholder status
    Value: "Pending first publish"
`

const (
	templateContentType = "application/x-yaml"
	catalogServiceName  = "servicecatalog.amazonaws.com"
	accountPlaceholder  = "${account_id}"
)

// EnsureTemplateBucket creates the template bucket if it is missing and
// applies versioning, encryption and ownership tags. Tagging is best-effort.
func (r *Reconciler) EnsureTemplateBucket(ctx context.Context, spec catalog.TemplateBucket) (types.ResourceRef, error) {
	prefix := spec.NamePrefix
	if prefix == "" {
		prefix = catalog.DefaultBucketPrefix
	}
	name := names.TemplateBucket(prefix, r.target.AccountID, r.target.Region)
	ref := types.ResourceRef{Name: name, ARN: names.BucketARN(name)}

	_, err := r.clients.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	switch {
	case err == nil:
		r.report("[exists] s3 bucket %s", name)
	case !cloud.IsNotFound(err):
		return ref, errors.CapabilityError("describe", "s3 bucket "+name, err)
	case r.dryRun:
		r.intend("create s3 bucket %s", name)
	default:
		in := &s3.CreateBucketInput{Bucket: aws.String(name)}
		if r.target.Region != "us-east-1" {
			in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
				LocationConstraint: s3types.BucketLocationConstraint(r.target.Region),
			}
		}
		if _, err := r.clients.S3.CreateBucket(ctx, in); err != nil && !cloud.IsAlreadyExists(err) {
			return ref, errors.CapabilityError("create", "s3 bucket "+name, err)
		}
		r.log.Info().Str("bucket", name).Msg("created template bucket")
		r.report("[created] s3 bucket %s", name)
	}

	if spec.VersioningEnabled() {
		if r.dryRun {
			r.intend("enable versioning on %s", name)
		} else if _, err := r.clients.S3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket:                  aws.String(name),
			VersioningConfiguration: &s3types.VersioningConfiguration{Status: s3types.BucketVersioningStatusEnabled},
		}); err != nil {
			return ref, errors.CapabilityError("enable versioning on", "s3 bucket "+name, err)
		}
	}

	encryption := spec.Encryption
	if encryption == "" {
		encryption = catalog.DefaultEncryption
	}
	if r.dryRun {
		r.intend("set encryption %s on %s", encryption, name)
	} else if _, err := r.clients.S3.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: aws.String(name),
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
					SSEAlgorithm: s3types.ServerSideEncryption(encryption),
				},
			}},
		},
	}); err != nil {
		return ref, errors.CapabilityError("set encryption on", "s3 bucket "+name, err)
	}

	tags := cloud.OwnershipTags(r.target.Environment, nil)
	if r.dryRun {
		r.intend("tag s3 bucket %s", name)
	} else {
		_, err := r.clients.S3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket:  aws.String(name),
			Tagging: &s3types.Tagging{TagSet: tags.S3()},
		})
		_ = errors.PolicyBestEffort.Handle(err, r.warn("tag s3 bucket "+name))
	}

	return ref, nil
}

// EnsureRepository creates a container registry if none with that name exists.
func (r *Reconciler) EnsureRepository(ctx context.Context, repo catalog.ECRRepository) (types.ResourceRef, error) {
	ref := types.ResourceRef{Name: repo.Name}

	out, err := r.clients.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{RepositoryNames: []string{repo.Name}})
	if err == nil && len(out.Repositories) > 0 {
		ref.ARN = aws.ToString(out.Repositories[0].RepositoryArn)
		ref.URI = aws.ToString(out.Repositories[0].RepositoryUri)
		r.report("[exists] ecr repository %s", repo.Name)
		return ref, nil
	}
	if err != nil && !cloud.IsNotFound(err) {
		return ref, errors.CapabilityError("describe", "ecr repository "+repo.Name, err)
	}

	if r.dryRun {
		r.intend("create ecr repository %s", repo.Name)
		ref.ARN = names.RepositoryARN(r.target.Region, r.target.AccountID, repo.Name)
		ref.URI = names.RepositoryURI(r.target.AccountID, r.target.Region, repo.Name)
		return ref, nil
	}

	mutability := repo.ImageTagMutability
	if mutability == "" {
		mutability = catalog.DefaultTagMutability
	}
	created, err := r.clients.ECR.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName:             aws.String(repo.Name),
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{ScanOnPush: repo.ScanOnPushEnabled()},
		ImageTagMutability:         ecrtypes.ImageTagMutability(mutability),
		Tags:                       cloud.OwnershipTags(r.target.Environment, nil).ECR(),
	})
	if err != nil {
		return ref, errors.CapabilityError("create", "ecr repository "+repo.Name, err)
	}
	if created.Repository != nil {
		ref.ARN = aws.ToString(created.Repository.RepositoryArn)
		ref.URI = aws.ToString(created.Repository.RepositoryUri)
	}
	r.log.Info().Str("repository", repo.Name).Msg("created container registry")
	r.report("[created] ecr repository %s", repo.Name)
	return ref, nil
}

// FindPortfolio pages through the account's portfolios and returns the one
// with the given display name, if any.
func (r *Reconciler) FindPortfolio(ctx context.Context, displayName string) (*sctypes.PortfolioDetail, error) {
	var token *string
	for {
		out, err := r.clients.ServiceCatalog.ListPortfolios(ctx, &servicecatalog.ListPortfoliosInput{PageToken: token})
		if err != nil {
			return nil, errors.CapabilityError("list", "portfolios", err)
		}
		for i := range out.PortfolioDetails {
			if aws.ToString(out.PortfolioDetails[i].DisplayName) == displayName {
				return &out.PortfolioDetails[i], nil
			}
		}
		if aws.ToString(out.NextPageToken) == "" {
			return nil, nil
		}
		token = out.NextPageToken
	}
}

// EnsurePortfolio finds the portfolio by its environment-qualified display
// name, creating it when absent, then associates the declared principals.
// Principal association is best-effort.
func (r *Reconciler) EnsurePortfolio(ctx context.Context, key string, spec catalog.PortfolioSpec) (types.ResourceRef, error) {
	display := spec.DisplayName
	if display == "" {
		display = key
	}
	displayName := names.Portfolio(display, r.target.Environment)
	ref := types.ResourceRef{Name: displayName}

	existing, err := r.FindPortfolio(ctx, displayName)
	if err != nil {
		return ref, err
	}

	switch {
	case existing != nil:
		ref.ID = aws.ToString(existing.Id)
		ref.ARN = aws.ToString(existing.ARN)
		r.report("[exists] portfolio %s (%s)", key, ref.ID)
	case r.dryRun:
		r.intend("create portfolio %s (%s)", key, displayName)
		ref.ID = DryRunPortfolioID
		ref.ARN = DryRunARN
	default:
		provider := spec.ProviderName
		if provider == "" {
			provider = catalog.DefaultProviderName
		}
		out, err := r.clients.ServiceCatalog.CreatePortfolio(ctx, &servicecatalog.CreatePortfolioInput{
			DisplayName:      aws.String(displayName),
			Description:      aws.String(spec.Description),
			ProviderName:     aws.String(provider),
			Tags:             cloud.OwnershipTags(r.target.Environment, spec.Tags).ServiceCatalog(),
			IdempotencyToken: aws.String(uuid.NewString()),
		})
		if err != nil {
			return ref, errors.CapabilityError("create", "portfolio "+key, err)
		}
		if out.PortfolioDetail != nil {
			ref.ID = aws.ToString(out.PortfolioDetail.Id)
			ref.ARN = aws.ToString(out.PortfolioDetail.ARN)
		}
		r.log.Info().Str("portfolio", key).Str("id", ref.ID).Msg("created portfolio")
		r.report("[created] portfolio %s (%s)", key, ref.ID)
	}

	for _, principal := range spec.Principals {
		arn := strings.ReplaceAll(principal, accountPlaceholder, r.target.AccountID)
		if r.dryRun {
			r.intend("associate principal %s with portfolio %s", arn, key)
			continue
		}
		_, err := r.clients.ServiceCatalog.AssociatePrincipalWithPortfolio(ctx, &servicecatalog.AssociatePrincipalWithPortfolioInput{
			PortfolioId:   aws.String(ref.ID),
			PrincipalARN:  aws.String(arn),
			PrincipalType: sctypes.PrincipalTypeIam,
		})
		_ = errors.PolicyBestEffort.Handle(err, r.warn(fmt.Sprintf("associate principal %s with portfolio %s", arn, key)))
	}

	return ref, nil
}

// TrustPolicy returns the launch role's trust document, which lets only the
// catalog service assume the role.
func TrustPolicy() string {
	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{{
			"Effect":    "Allow",
			"Principal": map[string]string{"Service": catalogServiceName},
			"Action":    "sts:AssumeRole",
		}},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// EnsureLaunchRole creates the environment's launch role if it is missing and
// attaches the launch policies.
func (r *Reconciler) EnsureLaunchRole(ctx context.Context) (types.ResourceRef, error) {
	name := names.LaunchRole(r.target.Environment)
	ref := types.ResourceRef{Name: name}

	out, err := r.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	switch {
	case err == nil:
		if out.Role != nil {
			ref.ARN = aws.ToString(out.Role.Arn)
		}
		r.report("[exists] iam role %s", name)
	case !cloud.IsNotFound(err):
		return ref, errors.CapabilityError("describe", "iam role "+name, err)
	case r.dryRun:
		r.intend("create iam role %s", name)
		ref.ARN = names.RoleARN(r.target.AccountID, name)
	default:
		created, err := r.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(name),
			AssumeRolePolicyDocument: aws.String(TrustPolicy()),
			Description:              aws.String("Service Catalog launch role for " + r.target.Environment),
			Tags:                     cloud.OwnershipTags(r.target.Environment, nil).IAM(),
		})
		if err != nil {
			return ref, errors.CapabilityError("create", "iam role "+name, err)
		}
		if created.Role != nil {
			ref.ARN = aws.ToString(created.Role.Arn)
		}
		r.log.Info().Str("role", name).Msg("created launch role")
		r.report("[created] iam role %s", name)
	}

	if r.dryRun {
		r.intend("attach policies to %s", name)
		return ref, nil
	}
	for _, policy := range LaunchPolicies {
		if _, err := r.clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(policy),
		}); err != nil {
			return ref, errors.CapabilityError("attach "+policy+" to", "iam role "+name, err)
		}
	}
	return ref, nil
}

// FindProduct searches the catalog for a registration with exactly the given
// name.
func (r *Reconciler) FindProduct(ctx context.Context, productName string) (*sctypes.ProductViewDetail, error) {
	var token *string
	for {
		out, err := r.clients.ServiceCatalog.SearchProductsAsAdmin(ctx, &servicecatalog.SearchProductsAsAdminInput{
			Filters:   map[string][]string{string(sctypes.ProductViewFilterByFullTextSearch): {productName}},
			PageToken: token,
		})
		if err != nil {
			return nil, errors.CapabilityError("search", "product "+productName, err)
		}
		for i := range out.ProductViewDetails {
			summary := out.ProductViewDetails[i].ProductViewSummary
			if summary != nil && aws.ToString(summary.Name) == productName {
				return &out.ProductViewDetails[i], nil
			}
		}
		if aws.ToString(out.NextPageToken) == "" {
			return nil, nil
		}
		token = out.NextPageToken
	}
}

// EnsureProduct finds the product's registration by name, registering it
// with the placeholder template when it does not exist. Existing
// registrations are never recreated; new content arrives through publish.
func (r *Reconciler) EnsureProduct(ctx context.Context, key, bucket string) (types.ResourceRef, error) {
	productName := names.Product(key, r.target.Environment)
	ref := types.ResourceRef{Name: productName}

	existing, err := r.FindProduct(ctx, productName)
	if err != nil {
		return ref, err
	}
	if existing != nil {
		ref.ID = aws.ToString(existing.ProductViewSummary.ProductId)
		ref.ARN = aws.ToString(existing.ProductARN)
		r.report("[exists] product %s (%s)", productName, ref.ID)
		return ref, nil
	}

	placeholderKey := names.PlaceholderKey(productName)
	if r.dryRun {
		r.intend("upload placeholder template s3://%s/%s", bucket, placeholderKey)
		r.intend("create product %s", productName)
		ref.ID = DryRunProductID
		ref.ARN = DryRunARN
		return ref, nil
	}

	if _, err := r.clients.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(placeholderKey),
		Body:        bytes.NewReader([]byte(PlaceholderTemplate)),
		ContentType: aws.String(templateContentType),
	}); err != nil {
		return ref, errors.CapabilityError("upload placeholder for", "product "+productName, err)
	}

	tags := cloud.OwnershipTags(r.target.Environment, nil).With(ProductKeyTag, key)
	out, err := r.clients.ServiceCatalog.CreateProduct(ctx, &servicecatalog.CreateProductInput{
		Name:        aws.String(productName),
		Owner:       aws.String(catalog.DefaultProviderName),
		Description: aws.String("Service Catalog product: " + key),
		ProductType: sctypes.ProductTypeCloudFormationTemplate,
		Tags:        tags.ServiceCatalog(),
		ProvisioningArtifactParameters: &sctypes.ProvisioningArtifactProperties{
			Name:        aws.String(names.PlaceholderArtifact),
			Description: aws.String("Placeholder - will be replaced on first publish"),
			Type:        sctypes.ProvisioningArtifactTypeCloudFormationTemplate,
			Info: map[string]string{
				"LoadTemplateFromURL": names.TemplateURL(bucket, r.target.Region, placeholderKey),
			},
		},
		IdempotencyToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return ref, errors.CapabilityError("create", "product "+productName, err)
	}
	if d := out.ProductViewDetail; d != nil {
		ref.ARN = aws.ToString(d.ProductARN)
		if d.ProductViewSummary != nil {
			ref.ID = aws.ToString(d.ProductViewSummary.ProductId)
		}
	}
	r.log.Info().Str("product", productName).Str("id", ref.ID).Msg("registered product")
	r.report("[created] product %s (%s)", productName, ref.ID)
	return ref, nil
}

// EnsureProductInPortfolio associates a product with a portfolio. The
// association call is idempotent on the service side.
func (r *Reconciler) EnsureProductInPortfolio(ctx context.Context, product, portfolio types.ResourceRef) error {
	if r.dryRun {
		r.intend("associate product %s with portfolio %s", product.ID, portfolio.ID)
		return nil
	}
	_, err := r.clients.ServiceCatalog.AssociateProductWithPortfolio(ctx, &servicecatalog.AssociateProductWithPortfolioInput{
		ProductId:   aws.String(product.ID),
		PortfolioId: aws.String(portfolio.ID),
	})
	if err != nil && !cloud.IsAlreadyExists(err) {
		return errors.CapabilityError("associate", fmt.Sprintf("product %s with portfolio %s", product.Name, portfolio.Name), err)
	}
	return nil
}

// EnsureLaunchConstraint binds the launch role to a product in a portfolio.
// An existing constraint is left in place.
func (r *Reconciler) EnsureLaunchConstraint(ctx context.Context, product, portfolio types.ResourceRef, roleARN string) error {
	if roleARN == "" {
		return nil
	}
	if r.dryRun {
		r.intend("create launch constraint for %s", product.Name)
		return nil
	}

	params, _ := json.Marshal(map[string]string{"RoleArn": roleARN})
	_, err := r.clients.ServiceCatalog.CreateConstraint(ctx, &servicecatalog.CreateConstraintInput{
		PortfolioId:      aws.String(portfolio.ID),
		ProductId:        aws.String(product.ID),
		Type:             aws.String("LAUNCH"),
		Parameters:       aws.String(string(params)),
		Description:      aws.String("Launch constraint for " + product.Name),
		IdempotencyToken: aws.String(uuid.NewString()),
	})
	switch {
	case err == nil:
		r.report("[created] launch constraint for %s", product.Name)
	case cloud.IsAlreadyExists(err):
	default:
		return errors.CapabilityError("create launch constraint for", "product "+product.Name, err)
	}
	return nil
}
