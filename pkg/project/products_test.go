package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/schema/catalog"
)

func newProject(t *testing.T) *Layout {
	t.Helper()
	layout, err := Init(filepath.Join(t.TempDir(), "proj"), InitOptions{})
	require.NoError(t, err)
	return layout
}

func TestAddProduct(t *testing.T) {
	layout := newProject(t)

	_, err := layout.AddProduct(AddProductOptions{Name: "networking", Portfolio: "platform", Outputs: []string{"VpcId"}})
	require.NoError(t, err)

	spec, err := layout.AddProduct(AddProductOptions{
		Name:         "database",
		Path:         "data/postgres",
		Portfolio:    "platform",
		Description:  "Postgres cluster",
		Dependencies: []string{"networking"},
		Mappings:     []string{"VpcId=networking.VpcId"},
	})
	require.NoError(t, err)
	assert.Equal(t, "data/postgres", spec.Path)

	cat, err := catalog.LoadCatalog(layout.CatalogFile())
	require.NoError(t, err)
	assert.Equal(t, []string{"database", "networking"}, cat.ProductNames())
	assert.Equal(t, "networking", cat.Products["networking"].Path)
	assert.Equal(t, []string{"VpcId"}, cat.Products["networking"].Outputs)
	assert.Equal(t, map[string]string{"VpcId": "networking.VpcId"}, cat.Products["database"].ParameterMapping)
	assert.Equal(t, []string{"networking"}, cat.Products["database"].Dependencies)

	tmpl, err := os.ReadFile(filepath.Join(layout.ProductsDir(), "data", "postgres", TemplateFile))
	require.NoError(t, err)
	assert.Contains(t, string(tmpl), "Description: Postgres cluster")
	assert.Contains(t, string(tmpl), "  VpcId:\n    Type: String\n    Description: Mapped from networking.VpcId\n")
	assert.NotContains(t, string(tmpl), "Outputs:")

	var meta productFile
	data, err := os.ReadFile(filepath.Join(layout.ProductsDir(), "data", "postgres", "product.yaml"))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &meta))
	assert.Equal(t, productFile{Name: "database", Description: "Postgres cluster", Portfolio: "platform"}, meta)

	netTmpl, err := os.ReadFile(filepath.Join(layout.ProductsDir(), "networking", TemplateFile))
	require.NoError(t, err)
	assert.Contains(t, string(netTmpl), "Description: Service Catalog template for networking")
	assert.Contains(t, string(netTmpl), `Name: !Sub "${Environment}-VpcId"`)
}

func TestAddProduct_Duplicate(t *testing.T) {
	layout := newProject(t)
	_, err := layout.AddProduct(AddProductOptions{Name: "api"})
	require.NoError(t, err)

	_, err = layout.AddProduct(AddProductOptions{Name: "api"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), `product "api" already exists`)
}

func TestAddProduct_BadMapping(t *testing.T) {
	layout := newProject(t)

	_, err := layout.AddProduct(AddProductOptions{Name: "api", Mappings: []string{"BadMapping"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --param-mapping")
	assert.NoDirExists(t, filepath.Join(layout.ProductsDir(), "api"), "nothing is written for a rejected product")

	cat, err := catalog.LoadCatalog(layout.CatalogFile())
	require.NoError(t, err)
	assert.Empty(t, cat.Products)
}

func TestAddProduct_RejectsInvalidGraph(t *testing.T) {
	layout := newProject(t)
	_, err := layout.AddProduct(AddProductOptions{Name: "networking", Outputs: []string{"VpcId"}})
	require.NoError(t, err)

	tests := []struct {
		name string
		opts AddProductOptions
	}{
		{name: "unknown dependency", opts: AddProductOptions{Name: "app", Dependencies: []string{"database"}}},
		{name: "mapping without dependency", opts: AddProductOptions{Name: "app", Mappings: []string{"VpcId=networking.VpcId"}}},
		{name: "undeclared output", opts: AddProductOptions{Name: "app", Dependencies: []string{"networking"}, Mappings: []string{"SubnetId=networking.SubnetId"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := layout.AddProduct(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeGraph))
			assert.NoDirExists(t, filepath.Join(layout.ProductsDir(), "app"))

			cat, err := catalog.LoadCatalog(layout.CatalogFile())
			require.NoError(t, err)
			assert.Equal(t, []string{"networking"}, cat.ProductNames())
		})
	}
}

func TestParseMappings(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{name: "single", pairs: []string{"VpcId=networking.VpcId"}, want: map[string]string{"VpcId": "networking.VpcId"}},
		{name: "value with equals", pairs: []string{"A=b.c=d"}, want: map[string]string{"A": "b.c=d"}},
		{name: "no separator", pairs: []string{"VpcId"}, wantErr: true},
		{name: "empty parameter", pairs: []string{"=networking.VpcId"}, wantErr: true},
		{name: "empty reference", pairs: []string{"VpcId="}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMappings(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
