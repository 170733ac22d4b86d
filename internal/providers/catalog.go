package providers

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field names a secondary credential field. The string value is also the key
// used in dispatch credentials.
type Field string

const (
	FieldAPIBase    Field = "api_base"
	FieldAPIVersion Field = "api_version"
	FieldRegion     Field = "region"
	FieldAccountID  Field = "account_id"
	FieldAPISecret  Field = "api_secret"
)

// CredentialAPIKey is the dispatch credential key carrying the primary credential.
const CredentialAPIKey = "api_key"

// secondaryFields fixes the order secondary fields are inspected in.
var secondaryFields = []Field{FieldAPIBase, FieldAPIVersion, FieldRegion, FieldAccountID, FieldAPISecret}

// Definition is the compiled-in description of a provider.
type Definition struct {
	Name        string           `yaml:"name"`
	DisplayName string           `yaml:"display_name"`
	PrimaryEnv  string           `yaml:"primary_env"`
	Secondary   map[Field]string `yaml:"secondary"`
	Required    []Field          `yaml:"required"` // secondaries the adapter cannot work without
	ModelsEnv   string           `yaml:"models_env"`
	Models      []string         `yaml:"models"`
}

type catalogFile struct {
	Providers []Definition `yaml:"providers"`
}

//go:embed catalog.yaml
var catalogYAML []byte

var defaultCatalog = mustParseCatalog(catalogYAML)

// DefaultCatalog returns a copy of the built-in provider catalog.
func DefaultCatalog() []Definition {
	out := make([]Definition, len(defaultCatalog))
	for i, def := range defaultCatalog {
		out[i] = def.clone()
	}
	return out
}

// ParseCatalog decodes and validates a YAML provider catalog.
func ParseCatalog(data []byte) ([]Definition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Providers))
	for _, def := range file.Providers {
		if def.Name == "" {
			return nil, fmt.Errorf("provider definition without a name")
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("duplicate provider %q", def.Name)
		}
		seen[def.Name] = true

		if def.PrimaryEnv == "" {
			return nil, fmt.Errorf("provider %q has no primary_env", def.Name)
		}
		if len(def.Models) == 0 {
			return nil, fmt.Errorf("provider %q has an empty model catalog", def.Name)
		}
		for field := range def.Secondary {
			if !isSecondaryField(field) {
				return nil, fmt.Errorf("provider %q declares unknown secondary field %q", def.Name, field)
			}
		}
		for _, field := range def.Required {
			if _, ok := def.Secondary[field]; !ok {
				return nil, fmt.Errorf("provider %q requires undeclared secondary field %q", def.Name, field)
			}
		}
	}

	return file.Providers, nil
}

func mustParseCatalog(data []byte) []Definition {
	defs, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}
	return defs
}

func isSecondaryField(f Field) bool {
	for _, known := range secondaryFields {
		if f == known {
			return true
		}
	}
	return false
}

func (d Definition) clone() Definition {
	c := d
	c.Models = append([]string(nil), d.Models...)
	c.Required = append([]Field(nil), d.Required...)
	if d.Secondary != nil {
		c.Secondary = make(map[Field]string, len(d.Secondary))
		for k, v := range d.Secondary {
			c.Secondary[k] = v
		}
	}
	return c
}
