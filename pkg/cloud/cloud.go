// Package cloud defines the narrow slices of the AWS service clients that
// scdctl calls. The real SDK clients satisfy these interfaces directly; tests
// substitute the in-memory fake from package cloudtest.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// S3API is the object storage surface: template bucket lifecycle and
// template uploads.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
	PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// ECRAPI is the container registry surface.
type ECRAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	DeleteRepository(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error)
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// IAMAPI is the identity surface used for the launch role.
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

// STSAPI verifies the caller identity.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// ServiceCatalogAPI is the catalog service surface: portfolios, products,
// provisioning artifacts and provisioned instances.
type ServiceCatalogAPI interface {
	ListPortfolios(ctx context.Context, params *servicecatalog.ListPortfoliosInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.ListPortfoliosOutput, error)
	CreatePortfolio(ctx context.Context, params *servicecatalog.CreatePortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.CreatePortfolioOutput, error)
	DeletePortfolio(ctx context.Context, params *servicecatalog.DeletePortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.DeletePortfolioOutput, error)
	AssociatePrincipalWithPortfolio(ctx context.Context, params *servicecatalog.AssociatePrincipalWithPortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.AssociatePrincipalWithPortfolioOutput, error)
	ListPrincipalsForPortfolio(ctx context.Context, params *servicecatalog.ListPrincipalsForPortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.ListPrincipalsForPortfolioOutput, error)
	DisassociatePrincipalFromPortfolio(ctx context.Context, params *servicecatalog.DisassociatePrincipalFromPortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.DisassociatePrincipalFromPortfolioOutput, error)

	SearchProductsAsAdmin(ctx context.Context, params *servicecatalog.SearchProductsAsAdminInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.SearchProductsAsAdminOutput, error)
	CreateProduct(ctx context.Context, params *servicecatalog.CreateProductInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.CreateProductOutput, error)
	DeleteProduct(ctx context.Context, params *servicecatalog.DeleteProductInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.DeleteProductOutput, error)
	AssociateProductWithPortfolio(ctx context.Context, params *servicecatalog.AssociateProductWithPortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.AssociateProductWithPortfolioOutput, error)
	ListPortfoliosForProduct(ctx context.Context, params *servicecatalog.ListPortfoliosForProductInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.ListPortfoliosForProductOutput, error)
	DisassociateProductFromPortfolio(ctx context.Context, params *servicecatalog.DisassociateProductFromPortfolioInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.DisassociateProductFromPortfolioOutput, error)
	CreateConstraint(ctx context.Context, params *servicecatalog.CreateConstraintInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.CreateConstraintOutput, error)

	CreateProvisioningArtifact(ctx context.Context, params *servicecatalog.CreateProvisioningArtifactInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.CreateProvisioningArtifactOutput, error)
	ListProvisioningArtifacts(ctx context.Context, params *servicecatalog.ListProvisioningArtifactsInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.ListProvisioningArtifactsOutput, error)
	DeleteProvisioningArtifact(ctx context.Context, params *servicecatalog.DeleteProvisioningArtifactInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.DeleteProvisioningArtifactOutput, error)
	ListLaunchPaths(ctx context.Context, params *servicecatalog.ListLaunchPathsInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.ListLaunchPathsOutput, error)

	ProvisionProduct(ctx context.Context, params *servicecatalog.ProvisionProductInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.ProvisionProductOutput, error)
	UpdateProvisionedProduct(ctx context.Context, params *servicecatalog.UpdateProvisionedProductInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.UpdateProvisionedProductOutput, error)
	TerminateProvisionedProduct(ctx context.Context, params *servicecatalog.TerminateProvisionedProductInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.TerminateProvisionedProductOutput, error)
	DescribeRecord(ctx context.Context, params *servicecatalog.DescribeRecordInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.DescribeRecordOutput, error)
	SearchProvisionedProducts(ctx context.Context, params *servicecatalog.SearchProvisionedProductsInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.SearchProvisionedProductsOutput, error)
	GetProvisionedProductOutputs(ctx context.Context, params *servicecatalog.GetProvisionedProductOutputsInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.GetProvisionedProductOutputsOutput, error)
}

// Clients bundles one client per service for a single account and region.
type Clients struct {
	S3             S3API
	ECR            ECRAPI
	IAM            IAMAPI
	STS            STSAPI
	ServiceCatalog ServiceCatalogAPI

	// Region the clients were configured for
	Region string
}

// Config selects the credentials and region the clients use.
type Config struct {
	// Named profile from the shared AWS config files. Empty uses the
	// default credential chain.
	Profile string

	Region string
}

// NewClients loads the AWS configuration for the profile and region and
// builds the service clients from it.
func NewClients(ctx context.Context, cfg Config) (*Clients, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return FromConfig(awsCfg), nil
}

// FromConfig builds the service clients from an already loaded configuration.
func FromConfig(cfg aws.Config) *Clients {
	return &Clients{
		S3:             s3.NewFromConfig(cfg),
		ECR:            ecr.NewFromConfig(cfg),
		IAM:            iam.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
		ServiceCatalog: servicecatalog.NewFromConfig(cfg),
		Region:         cfg.Region,
	}
}
