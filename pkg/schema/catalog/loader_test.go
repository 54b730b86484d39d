package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCatalog_AppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", `
products:
  networking:
    path: networking
    portfolio: core
    outputs: [VpcId, SubnetIds]
  database:
    path: database
    dependencies: [networking]
    parameter_mapping:
      VpcId: networking.VpcId
`)

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultDeployStateFile, c.Settings.StateFile)
	assert.Equal(t, DefaultVersionFormat, c.Settings.VersionFormat)
	assert.Equal(t, []string{"database", "networking"}, c.ProductNames())
	assert.True(t, c.Products["database"].DependsOn("networking"))
	assert.True(t, c.Products["networking"].DeclaresOutput("VpcId"))
	assert.False(t, c.Products["networking"].DeclaresOutput("Missing"))
}

func TestLoadCatalog_MissingPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", `
products:
  networking:
    portfolio: core
`)

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "Path")
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
}

func TestLoadCatalog_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", "products: [unclosed")
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadBootstrap_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bootstrap.yaml", `
template_bucket:
  versioning: false
ecr_repositories:
  - name: app
portfolios:
  core:
    description: Core infrastructure
    principals:
      - arn:aws:iam::${account_id}:role/Admin
`)

	b, err := LoadBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBootstrapStateFile, b.Settings.StateFile)
	assert.Equal(t, DefaultBucketPrefix, b.TemplateBucket.NamePrefix)
	assert.Equal(t, DefaultEncryption, b.TemplateBucket.Encryption)
	assert.False(t, b.TemplateBucket.VersioningEnabled())

	require.Len(t, b.ECRRepositories, 1)
	assert.True(t, b.ECRRepositories[0].ScanOnPushEnabled())
	assert.Equal(t, DefaultTagMutability, b.ECRRepositories[0].ImageTagMutability)

	core := b.Portfolios["core"]
	assert.Equal(t, "core", core.DisplayName)
	assert.Equal(t, DefaultProviderName, core.ProviderName)
}

func TestLoadBootstrap_RejectsUnknownEncryption(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bootstrap.yaml", `
template_bucket:
  encryption: rot13
`)
	_, err := LoadBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields empty set", func(t *testing.T) {
		p, err := LoadProfiles(filepath.Join(dir, "profiles.yaml"))
		require.NoError(t, err)
		assert.Empty(t, p.Profiles)

		_, err = p.Profile("dev")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
		assert.Contains(t, err.Error(), "scdctl connect -e dev")
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "profiles.yaml")
		in := &ProfilesFile{Profiles: map[string]Profile{
			"dev": {AWSProfile: "dev-admin", AWSRegion: "us-east-1", AccountID: "123456789012"},
		}}
		require.NoError(t, SaveProfiles(path, in))

		out, err := LoadProfiles(path)
		require.NoError(t, err)
		prof, err := out.Profile("dev")
		require.NoError(t, err)
		assert.Equal(t, in.Profiles["dev"], prof)
	})

	t.Run("rejects malformed account", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", `
profiles:
  dev:
    aws_profile: dev
    aws_region: us-east-1
    account_id: "12"
`)
		_, err := LoadProfiles(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	})
}

func TestSplitReference(t *testing.T) {
	tests := []struct {
		ref    string
		dep    string
		output string
		ok     bool
	}{
		{"networking.VpcId", "networking", "VpcId", true},
		{"VpcId", "", "", false},
		{".VpcId", "", "", false},
		{"networking.", "", "", false},
		{"a.b.c", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			dep, out, ok := SplitReference(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.dep, dep)
			assert.Equal(t, tt.output, out)
		})
	}
}

func TestProfileValidate(t *testing.T) {
	assert.NoError(t, Profile{AWSProfile: "dev", AWSRegion: "us-east-1"}.Validate())
	assert.NoError(t, Profile{AWSProfile: "dev", AWSRegion: "us-east-1", AccountID: "123456789012"}.Validate())

	err := Profile{AWSProfile: "dev", AWSRegion: "us-east-1", AccountID: "abc"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))

	assert.Error(t, Profile{AWSRegion: "us-east-1"}.Validate())
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(`
products:
  networking:
    path: networking
    outputs: [VpcId]
`), "playground.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"networking"}, c.ProductNames())

	_, err = ParseCatalog([]byte("products: ["), "playground.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse playground.yaml")
}
