// Package config loads, merges, and validates config.yaml and
// providers.yaml: built-in defaults are merged underneath the user's YAML
// via dario.cat/mergo, ${VAR} references are expanded from the
// environment, and the resolved result is validated once at startup.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads config.yaml and providers.yaml from configDir, merges
// them with built-in defaults, validates the result, and returns a
// ready-to-use Config.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"queues", cfg.Queues,
		"llm_providers", len(cfg.LLMProviders),
		"embedding_configured", cfg.Embedding.Configured(),
		"reranker_configured", cfg.Reranker.Configured(),
		"brightdata_configured", cfg.Brightdata.Configured(),
	)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	fileCfg, err := loader.loadFileConfig()
	if err != nil {
		return nil, NewLoadError("config.yaml", err)
	}
	providersCfg, err := loader.loadProvidersConfig()
	if err != nil {
		return nil, NewLoadError("providers.yaml", err)
	}

	merged := builtinFileConfig()
	if err := mergo.Merge(merged, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config.yaml with built-in defaults: %w", err)
	}

	cfg := &Config{
		ConfigDir: configDir,
		Queues:    merged.Queues,

		JobTimeout:        secondsOr(merged.Defaults.JobTimeoutSeconds, 900),
		EventHistoryLimit: intOr(merged.Defaults.EventHistoryLimit, 100),
		JobTTL:            secondsOr(merged.Defaults.JobTTLSeconds, 3600),
		MaxRetainedJobs:   intOr(merged.Defaults.MaxRetainedJobs, 1000),

		VendorMaxURLsPerRequest: intOr(merged.Vendor.MaxURLsPerRequest, 50),
		VendorMaxWorkers:        intOr(merged.Vendor.MaxWorkers, 8),
		VendorPollInterval:      secondsOr(merged.Vendor.PollIntervalSeconds, 5),

		SSRFAllowedHosts: merged.SSRF.AllowedHosts,

		LLMProviders: resolveLLMProviders(providersCfg.LLMProviders),
		Embedding:    resolveEndpoint(providersCfg.Embedding),
		Reranker:     resolveEndpoint(providersCfg.Reranker),
		VectorStore:  resolveVectorStore(providersCfg.VectorStore),
		Brightdata:   resolveBrightdata(providersCfg.Brightdata),
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

// loadYAML reads filename from configDir, expands environment variables,
// then unmarshals into target. A
// missing file is not an error: both config.yaml and providers.yaml are
// optional overlays on top of built-in defaults and environment variables.
func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadFileConfig() (*FileConfig, error) {
	var cfg FileConfig
	if err := l.loadYAML("config.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *configLoader) loadProvidersConfig() (*ProvidersFileConfig, error) {
	var cfg ProvidersFileConfig
	cfg.LLMProviders = make(map[string]LLMProviderFileConfig)
	if err := l.loadYAML("providers.yaml", &cfg); err != nil {
		return nil, err
	}
	if cfg.LLMProviders == nil {
		cfg.LLMProviders = make(map[string]LLMProviderFileConfig)
	}
	return &cfg, nil
}

func resolveLLMProviders(in map[string]LLMProviderFileConfig) map[string]ResolvedLLMProvider {
	out := make(map[string]ResolvedLLMProvider, len(in))
	for name, p := range in {
		out[name] = ResolvedLLMProvider{
			BaseURL: os.Getenv(p.BaseURLEnv),
			APIKey:  os.Getenv(p.APIKeyEnv),
			Model:   p.Model,
		}
	}
	return out
}

func resolveEndpoint(e *EndpointFileConfig) ResolvedEndpoint {
	if e == nil {
		return ResolvedEndpoint{}
	}
	return ResolvedEndpoint{BaseURL: os.Getenv(e.BaseURLEnv), APIKey: os.Getenv(e.APIKeyEnv)}
}

func resolveVectorStore(v *VectorStoreFileConfig) ResolvedVectorStore {
	if v == nil {
		return ResolvedVectorStore{}
	}
	return ResolvedVectorStore{
		Addr:              os.Getenv(v.QdrantAddrEnv),
		ProfileCollection: v.ProfileCollection,
		PostsCollection:   v.PostsCollection,
	}
}

func resolveBrightdata(b *BrightdataFileConfig) ResolvedBrightdata {
	if b == nil {
		return ResolvedBrightdata{}
	}
	return ResolvedBrightdata{
		BaseURL:              os.Getenv(b.BaseURLEnv),
		APIKey:               os.Getenv(b.APIKeyEnv),
		DatasetIDsByPlatform: b.DatasetIDsByPlatform,
	}
}
