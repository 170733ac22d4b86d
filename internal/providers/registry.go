package providers

import (
	"os"
	"strings"

	"unified_gateway/internal/utils"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ProviderConfig is the resolved configuration of an activated provider.
// Empty secondary fields are unset.
type ProviderConfig struct {
	ProviderName      string
	PrimaryCredential string
	APIBase           string
	APIVersion        string
	Region            string
	AccountID         string
	APISecret         string
	AvailableModels   []string
}

// Field returns the value of a secondary field.
func (c *ProviderConfig) Field(f Field) string {
	switch f {
	case FieldAPIBase:
		return c.APIBase
	case FieldAPIVersion:
		return c.APIVersion
	case FieldRegion:
		return c.Region
	case FieldAccountID:
		return c.AccountID
	case FieldAPISecret:
		return c.APISecret
	}
	return ""
}

func (c *ProviderConfig) setField(f Field, value string) {
	switch f {
	case FieldAPIBase:
		c.APIBase = value
	case FieldAPIVersion:
		c.APIVersion = value
	case FieldRegion:
		c.Region = value
	case FieldAccountID:
		c.AccountID = value
	case FieldAPISecret:
		c.APISecret = value
	}
}

func (c *ProviderConfig) clone() *ProviderConfig {
	cp := *c
	cp.AvailableModels = append([]string(nil), c.AvailableModels...)
	return &cp
}

// Registry holds the providers activated from an environment snapshot.
// It is built once and never mutated, so concurrent readers need no locking.
type Registry struct {
	definitions []Definition
	configs     map[string]*ProviderConfig
	activated   []string
	missing     map[string][]string // provider -> absent required env variables
}

// NewRegistryFromEnv builds a registry from the built-in catalog and the
// process environment.
func NewRegistryFromEnv() *Registry {
	return NewRegistry(DefaultCatalog(), os.LookupEnv)
}

// NewRegistry activates every definition whose primary credential variable
// is set and non-empty according to lookup.
func NewRegistry(defs []Definition, lookup LookupFunc) *Registry {
	logger := utils.NewLogger("provider-registry")

	r := &Registry{
		definitions: make([]Definition, len(defs)),
		configs:     make(map[string]*ProviderConfig),
		activated:   []string{},
		missing:     make(map[string][]string),
	}

	for i, def := range defs {
		r.definitions[i] = def.clone()

		primary, ok := lookup(def.PrimaryEnv)
		if !ok || primary == "" {
			continue
		}

		cfg := &ProviderConfig{
			ProviderName:      def.Name,
			PrimaryCredential: primary,
			AvailableModels:   resolveModels(def, lookup),
		}

		for _, field := range secondaryFields {
			envKey, declared := def.Secondary[field]
			if !declared {
				continue
			}
			if value, ok := lookup(envKey); ok && value != "" {
				cfg.setField(field, value)
			}
		}

		// Activation tolerates absent secondaries; only required ones are reported.
		var missing []string
		for _, field := range def.Required {
			if cfg.Field(field) == "" {
				missing = append(missing, def.Secondary[field])
			}
		}
		if len(missing) > 0 {
			r.missing[def.Name] = missing
			logger.Warn("Provider activated without required secondary credentials",
				"provider", def.Name, "missing", strings.Join(missing, ","))
		}

		r.configs[def.Name] = cfg
		r.activated = append(r.activated, def.Name)
	}

	logger.Info("Provider registry initialized", "activated", strings.Join(r.activated, ","))
	return r
}

// resolveModels returns the models override from ModelsEnv when it yields at
// least one entry, otherwise the definition's default catalog.
func resolveModels(def Definition, lookup LookupFunc) []string {
	if def.ModelsEnv != "" {
		if raw, ok := lookup(def.ModelsEnv); ok {
			var models []string
			for _, m := range strings.Split(raw, ",") {
				if m = strings.TrimSpace(m); m != "" {
					models = append(models, m)
				}
			}
			if len(models) > 0 {
				return models
			}
		}
	}
	return append([]string(nil), def.Models...)
}

// ListActivatedProviders returns the configured provider names in catalog order.
func (r *Registry) ListActivatedProviders() []string {
	return append([]string{}, r.activated...)
}

// GetConfig returns the configuration of an activated provider.
func (r *Registry) GetConfig(provider string) (*ProviderConfig, bool) {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, false
	}
	return cfg.clone(), true
}

// GetAvailableModels returns the provider's models, or an empty slice when
// the provider is not activated.
func (r *Registry) GetAvailableModels(provider string) []string {
	cfg, ok := r.configs[provider]
	if !ok {
		return []string{}
	}
	return append([]string{}, cfg.AvailableModels...)
}

// IsConfigured reports whether the provider was activated.
func (r *Registry) IsConfigured(provider string) bool {
	_, ok := r.configs[provider]
	return ok
}

// HasModel reports whether model is in the provider's catalog. Matching is
// exact and case sensitive.
func (r *Registry) HasModel(provider, model string) bool {
	cfg, ok := r.configs[provider]
	if !ok {
		return false
	}
	for _, m := range cfg.AvailableModels {
		if m == model {
			return true
		}
	}
	return false
}

// GetDispatchCredentials returns the credential fields to hand to the
// completion client: api_key plus every secondary field that is set.
// Unconfigured providers yield an empty map.
func (r *Registry) GetDispatchCredentials(provider string) map[string]string {
	creds := map[string]string{}
	cfg, ok := r.configs[provider]
	if !ok {
		return creds
	}

	creds[CredentialAPIKey] = cfg.PrimaryCredential
	for _, field := range secondaryFields {
		if v := cfg.Field(field); v != "" {
			creds[string(field)] = v
		}
	}
	return creds
}

// Definitions returns the full catalog, configured or not, in catalog order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.definitions))
	for i, def := range r.definitions {
		out[i] = def.clone()
	}
	return out
}

// MissingRequired lists the required secondary variables an activated
// provider was started without. Calls to such a provider fail upstream.
func (r *Registry) MissingRequired(provider string) []string {
	return append([]string(nil), r.missing[provider]...)
}
