package cloud

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"
)

// Ownership tag keys and the managed-by marker value.
const (
	TagManagedBy   = "ManagedBy"
	TagEnvironment = "Environment"
	ManagedByValue = "scd"
)

// Tags is a set of resource tags. Conversions emit them sorted by key.
type Tags map[string]string

// OwnershipTags returns the managed-by marker and the environment tag merged
// over the extra tags. The ownership pair cannot be overridden.
func OwnershipTags(environment string, extra map[string]string) Tags {
	t := make(Tags, len(extra)+2)
	for k, v := range extra {
		t[k] = v
	}
	t[TagManagedBy] = ManagedByValue
	t[TagEnvironment] = environment
	return t
}

// With returns a copy of the tags with one more entry.
func (t Tags) With(key, value string) Tags {
	out := make(Tags, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[key] = value
	return out
}

// Keys returns the tag keys in sorted order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Tags) S3() []s3types.Tag {
	out := make([]s3types.Tag, 0, len(t))
	for _, k := range t.Keys() {
		out = append(out, s3types.Tag{Key: aws.String(k), Value: aws.String(t[k])})
	}
	return out
}

func (t Tags) ECR() []ecrtypes.Tag {
	out := make([]ecrtypes.Tag, 0, len(t))
	for _, k := range t.Keys() {
		out = append(out, ecrtypes.Tag{Key: aws.String(k), Value: aws.String(t[k])})
	}
	return out
}

func (t Tags) IAM() []iamtypes.Tag {
	out := make([]iamtypes.Tag, 0, len(t))
	for _, k := range t.Keys() {
		out = append(out, iamtypes.Tag{Key: aws.String(k), Value: aws.String(t[k])})
	}
	return out
}

func (t Tags) ServiceCatalog() []sctypes.Tag {
	out := make([]sctypes.Tag, 0, len(t))
	for _, k := range t.Keys() {
		out = append(out, sctypes.Tag{Key: aws.String(k), Value: aws.String(t[k])})
	}
	return out
}
