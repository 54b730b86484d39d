package reconciler

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
)

// Teardown operations remove what Sync created. Their preparatory steps
// (disassociations, artifact deletion, emptying, detaching) are best-effort
// so that the final delete is always attempted; only that final call's
// error is returned. Objects that are already gone count as deleted.

// maxDeleteBatch is the object limit of a single DeleteObjects call.
const maxDeleteBatch = 1000

// DeleteProduct removes a product registration after disassociating it from
// every portfolio and deleting its provisioning artifacts.
func (r *Reconciler) DeleteProduct(ctx context.Context, productID, name string) error {
	if r.dryRun {
		r.intend("delete product %s (%s)", name, productID)
		return nil
	}

	portfolios, err := r.clients.ServiceCatalog.ListPortfoliosForProduct(ctx, &servicecatalog.ListPortfoliosForProductInput{ProductId: aws.String(productID)})
	if err == nil {
		for _, p := range portfolios.PortfolioDetails {
			_, err := r.clients.ServiceCatalog.DisassociateProductFromPortfolio(ctx, &servicecatalog.DisassociateProductFromPortfolioInput{
				ProductId:   aws.String(productID),
				PortfolioId: p.Id,
			})
			_ = errors.PolicyBestEffort.Handle(err, r.warn("disassociate product "+name+" from portfolio "+aws.ToString(p.Id)))
		}
	} else if !cloud.IsNotFound(err) {
		_ = errors.PolicyBestEffort.Handle(err, r.warn("list portfolios of product "+name))
	}

	artifacts, err := r.clients.ServiceCatalog.ListProvisioningArtifacts(ctx, &servicecatalog.ListProvisioningArtifactsInput{ProductId: aws.String(productID)})
	if err == nil {
		// The service refuses to delete a product's last artifact; deleting
		// the product removes it.
		for i, a := range artifacts.ProvisioningArtifactDetails {
			if i == len(artifacts.ProvisioningArtifactDetails)-1 {
				break
			}
			_, err := r.clients.ServiceCatalog.DeleteProvisioningArtifact(ctx, &servicecatalog.DeleteProvisioningArtifactInput{
				ProductId:              aws.String(productID),
				ProvisioningArtifactId: a.Id,
			})
			_ = errors.PolicyBestEffort.Handle(err, r.warn("delete artifact "+aws.ToString(a.Name)+" of product "+name))
		}
	} else if !cloud.IsNotFound(err) {
		_ = errors.PolicyBestEffort.Handle(err, r.warn("list artifacts of product "+name))
	}

	_, err = r.clients.ServiceCatalog.DeleteProduct(ctx, &servicecatalog.DeleteProductInput{Id: aws.String(productID)})
	if err != nil && !cloud.IsNotFound(err) {
		return errors.CapabilityError("delete", "product "+name, err)
	}
	r.log.Info().Str("product", name).Msg("deleted product")
	r.report("[deleted] product %s", name)
	return nil
}

// DeletePortfolio removes a portfolio after disassociating its principals.
func (r *Reconciler) DeletePortfolio(ctx context.Context, portfolioID, name string) error {
	if r.dryRun {
		r.intend("delete portfolio %s (%s)", name, portfolioID)
		return nil
	}

	principals, err := r.clients.ServiceCatalog.ListPrincipalsForPortfolio(ctx, &servicecatalog.ListPrincipalsForPortfolioInput{PortfolioId: aws.String(portfolioID)})
	if err == nil {
		for _, p := range principals.Principals {
			_, err := r.clients.ServiceCatalog.DisassociatePrincipalFromPortfolio(ctx, &servicecatalog.DisassociatePrincipalFromPortfolioInput{
				PortfolioId:  aws.String(portfolioID),
				PrincipalARN: p.PrincipalARN,
			})
			_ = errors.PolicyBestEffort.Handle(err, r.warn("disassociate principal "+aws.ToString(p.PrincipalARN)+" from portfolio "+name))
		}
	} else if !cloud.IsNotFound(err) {
		_ = errors.PolicyBestEffort.Handle(err, r.warn("list principals of portfolio "+name))
	}

	_, err = r.clients.ServiceCatalog.DeletePortfolio(ctx, &servicecatalog.DeletePortfolioInput{Id: aws.String(portfolioID)})
	if err != nil && !cloud.IsNotFound(err) {
		return errors.CapabilityError("delete", "portfolio "+name, err)
	}
	r.log.Info().Str("portfolio", name).Msg("deleted portfolio")
	r.report("[deleted] portfolio %s", name)
	return nil
}

// DeleteRepository force-deletes a container registry and its images.
func (r *Reconciler) DeleteRepository(ctx context.Context, name string) error {
	if r.dryRun {
		r.intend("delete ecr repository %s", name)
		return nil
	}

	_, err := r.clients.ECR.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: aws.String(name),
		Force:          true,
	})
	if err != nil && !cloud.IsNotFound(err) {
		return errors.CapabilityError("delete", "ecr repository "+name, err)
	}
	r.log.Info().Str("repository", name).Msg("deleted container registry")
	r.report("[deleted] ecr repository %s", name)
	return nil
}

// DeleteBucket removes every object version and delete marker from the
// bucket, then the bucket itself.
func (r *Reconciler) DeleteBucket(ctx context.Context, name string) error {
	if r.dryRun {
		r.intend("empty and delete s3 bucket %s", name)
		return nil
	}

	_ = errors.PolicyBestEffort.Handle(r.emptyBucket(ctx, name), r.warn("empty s3 bucket "+name))

	_, err := r.clients.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil && !cloud.IsNotFound(err) {
		return errors.CapabilityError("delete", "s3 bucket "+name, err)
	}
	r.log.Info().Str("bucket", name).Msg("deleted template bucket")
	r.report("[deleted] s3 bucket %s", name)
	return nil
}

func (r *Reconciler) emptyBucket(ctx context.Context, name string) error {
	var keyMarker, versionMarker *string
	for {
		out, err := r.clients.S3.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          aws.String(name),
			KeyMarker:       keyMarker,
			VersionIdMarker: versionMarker,
		})
		if err != nil {
			if cloud.IsNotFound(err) {
				return nil
			}
			return err
		}

		var objects []s3types.ObjectIdentifier
		for _, v := range out.Versions {
			objects = append(objects, s3types.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
		}
		for _, m := range out.DeleteMarkers {
			objects = append(objects, s3types.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
		}

		for start := 0; start < len(objects); start += maxDeleteBatch {
			end := start + maxDeleteBatch
			if end > len(objects) {
				end = len(objects)
			}
			if _, err := r.clients.S3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(name),
				Delete: &s3types.Delete{Objects: objects[start:end], Quiet: aws.Bool(true)},
			}); err != nil {
				return err
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		keyMarker = out.NextKeyMarker
		versionMarker = out.NextVersionIdMarker
	}
}

// DeleteRole detaches every managed policy from the role and deletes it.
func (r *Reconciler) DeleteRole(ctx context.Context, name string) error {
	if r.dryRun {
		r.intend("delete iam role %s", name)
		return nil
	}

	attached, err := r.clients.IAM.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
	if err == nil {
		for _, p := range attached.AttachedPolicies {
			_, err := r.clients.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
				RoleName:  aws.String(name),
				PolicyArn: p.PolicyArn,
			})
			_ = errors.PolicyBestEffort.Handle(err, r.warn("detach "+aws.ToString(p.PolicyArn)+" from iam role "+name))
		}
	} else if !cloud.IsNotFound(err) {
		_ = errors.PolicyBestEffort.Handle(err, r.warn("list policies of iam role "+name))
	}

	_, err = r.clients.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
	if err != nil && !cloud.IsNotFound(err) {
		return errors.CapabilityError("delete", "iam role "+name, err)
	}
	r.log.Info().Str("role", name).Msg("deleted launch role")
	r.report("[deleted] iam role %s", name)
	return nil
}
