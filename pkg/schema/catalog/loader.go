package catalog

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// LoadCatalog reads and validates the product catalog.
func LoadCatalog(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("failed to read %s", path), err).WithDetail("file", path)
	}
	return ParseCatalog(data, path)
}

// ParseCatalog decodes and validates catalog YAML. source names the input
// in error messages.
func ParseCatalog(data []byte, source string) (*CatalogFile, error) {
	var c CatalogFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("failed to parse %s", source), err).WithDetail("file", source)
	}
	c.applyDefaults()
	if err := validateStruct(source, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadBootstrap reads and validates the bootstrap definition.
func LoadBootstrap(path string) (*BootstrapFile, error) {
	var b BootstrapFile
	if err := loadYAML(path, &b); err != nil {
		return nil, err
	}
	b.applyDefaults()
	if err := validateStruct(path, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadProfiles reads the environment profiles. A missing file yields an
// empty set so that connect can create it.
func LoadProfiles(path string) (*ProfilesFile, error) {
	var p ProfilesFile
	if err := loadYAML(path, &p); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &ProfilesFile{Profiles: make(map[string]Profile)}, nil
		}
		return nil, err
	}
	if p.Profiles == nil {
		p.Profiles = make(map[string]Profile)
	}
	if err := validateStruct(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Profile returns the stored profile for an environment.
func (p *ProfilesFile) Profile(environment string) (Profile, error) {
	prof, ok := p.Profiles[environment]
	if !ok {
		return Profile{}, errors.ConfigurationError(
			fmt.Sprintf("environment %q is not configured (run `scdctl connect -e %s`)", environment, environment), nil).
			WithDetail("environment", environment)
	}
	return prof, nil
}

// Validate checks a profile before it is stored.
func (p Profile) Validate() error {
	return validateStruct("profile", &p)
}

// SaveCatalog writes the catalog as YAML.
func SaveCatalog(path string, c *CatalogFile) error {
	return saveYAML(path, c)
}

// SaveBootstrap writes the bootstrap definition as YAML.
func SaveBootstrap(path string, b *BootstrapFile) error {
	return saveYAML(path, b)
}

// SaveProfiles writes the profiles as YAML.
func SaveProfiles(path string, p *ProfilesFile) error {
	return saveYAML(path, p)
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigurationError(fmt.Sprintf("failed to read %s", path), err).WithDetail("file", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.ConfigurationError(fmt.Sprintf("failed to parse %s", path), err).WithDetail("file", path)
	}
	return nil
}

func saveYAML(path string, in interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func validateStruct(path string, v interface{}) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.ConfigurationError(fmt.Sprintf("invalid %s", path), err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.ConfigurationError(fmt.Sprintf("invalid %s: %s", path, strings.Join(msgs, "; ")), nil).
		WithDetail("file", path)
}
