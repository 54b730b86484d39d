package cloud

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipTags(t *testing.T) {
	tags := OwnershipTags("dev", map[string]string{"Team": "platform", TagManagedBy: "someone-else"})

	assert.Equal(t, Tags{"ManagedBy": "scd", "Environment": "dev", "Team": "platform"}, tags)
	assert.Equal(t, []string{"Environment", "ManagedBy", "Team"}, tags.Keys())

	withKey := tags.With("ProductKey", "networking")
	assert.Equal(t, "networking", withKey["ProductKey"])
	assert.NotContains(t, tags, "ProductKey")
}

func TestTagConversions(t *testing.T) {
	tags := OwnershipTags("dev", nil)

	s3Tags := tags.S3()
	require.Len(t, s3Tags, 2)
	assert.Equal(t, "Environment", aws.ToString(s3Tags[0].Key))
	assert.Equal(t, "dev", aws.ToString(s3Tags[0].Value))

	scTags := tags.ServiceCatalog()
	require.Len(t, scTags, 2)
	assert.Equal(t, "ManagedBy", aws.ToString(scTags[1].Key))
	assert.Equal(t, "scd", aws.ToString(scTags[1].Value))

	assert.Len(t, tags.ECR(), 2)
	assert.Len(t, tags.IAM(), 2)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&smithy.GenericAPIError{Code: "NoSuchEntity"}))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NotFound"})))
	assert.False(t, IsNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, IsAlreadyExists(&smithy.GenericAPIError{Code: "DuplicateResourceException"}))
	assert.False(t, IsAlreadyExists(&smithy.GenericAPIError{Code: "NotFound"}))
}

func TestNewClients_RequiresRegion(t *testing.T) {
	_, err := NewClients(context.Background(), Config{Profile: "dev"})
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	clients := FromConfig(aws.Config{Region: "eu-west-1"})
	assert.Equal(t, "eu-west-1", clients.Region)
	assert.NotNil(t, clients.S3)
	assert.NotNil(t, clients.ECR)
	assert.NotNil(t, clients.IAM)
	assert.NotNil(t, clients.STS)
	assert.NotNil(t, clients.ServiceCatalog)
}
