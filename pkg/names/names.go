// Package names derives the deterministic, environment-qualified names of
// every remote object scdctl manages, so repeated runs target the same
// objects even when local state has been lost.
package names

import (
	"fmt"
	"strings"
	"time"
)

// PlaceholderArtifact names the provisioning artifact a product is registered
// with before its first publish.
const PlaceholderArtifact = "v0.0.0-placeholder"

// TemplateBucket returns "<prefix>-<account>-<region>".
func TemplateBucket(prefix, accountID, region string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, accountID, region)
}

// BucketARN returns the ARN of an S3 bucket.
func BucketARN(bucket string) string {
	return "arn:aws:s3:::" + bucket
}

// LaunchRole returns the name of the environment's launch role.
func LaunchRole(environment string) string {
	return "scd-launch-role-" + environment
}

// RoleARN returns the ARN of an IAM role in the account.
func RoleARN(accountID, role string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, role)
}

// RepositoryARN returns the ARN of a container registry.
func RepositoryARN(region, accountID, repository string) string {
	return fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", region, accountID, repository)
}

// RepositoryURI returns the pull URI of a container registry.
func RepositoryURI(accountID, region, repository string) string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", accountID, region, repository)
}

// Portfolio returns the display name a portfolio is created and matched by.
func Portfolio(displayName, environment string) string {
	return fmt.Sprintf("%s (%s)", displayName, environment)
}

// Product returns the registered name of a catalog product.
func Product(key, environment string) string {
	return fmt.Sprintf("%s-%s", key, environment)
}

// Instance returns the provisioned instance name of a product.
func Instance(environment, product string) string {
	return fmt.Sprintf("%s-%s", environment, product)
}

// PlaceholderKey returns the object key of a product's placeholder template.
func PlaceholderKey(productName string) string {
	return fmt.Sprintf("_placeholders/%s/placeholder.yaml", productName)
}

// TemplateKey returns the object key a published template version is stored under.
func TemplateKey(product, version string) string {
	return fmt.Sprintf("%s/%s/template.yaml", product, version)
}

// TemplateURL returns the HTTPS URL the catalog service loads a template from.
func TemplateURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// maxTokenLength is the longest idempotency token the catalog service accepts.
const maxTokenLength = 128

// TerminateToken returns the uniqueness token of a terminate request. The
// catalog service only accepts letters, digits, '-' and '_' in tokens, so
// other characters of the product name become '-' and a long name is cut.
func TerminateToken(product string, t time.Time) string {
	stamp := VersionLabel("%Y%m%d%H%M%S", t)
	room := maxTokenLength - len("terminate--") - len(stamp)
	return fmt.Sprintf("terminate-%s-%s", tokenSafe(product, room), stamp)
}

// tokenSafe maps s onto the token charset and keeps at most n bytes.
func tokenSafe(s string, n int) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, s)
	if len(safe) > n {
		safe = safe[:n]
	}
	return safe
}

// VersionLabel formats t (in UTC) with a strftime-style layout. Supported
// directives are %Y %m %d %H %M %S and %%; anything else is copied as is.
// An empty layout uses "%Y.%m.%d.%H%M%S", which sorts lexicographically in
// time order.
func VersionLabel(layout string, t time.Time) string {
	if layout == "" {
		layout = "%Y.%m.%d.%H%M%S"
	}
	t = t.UTC()

	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c != '%' || i+1 == len(layout) {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}
