package config

import "time"

// FileConfig is the parsed shape of config.yaml: queue declarations,
// job-runtime defaults, vendor-worker tuning, and the SSRF allow-list.
type FileConfig struct {
	Queues   []string        `yaml:"queues"`
	Defaults *DefaultsConfig `yaml:"defaults"`
	Vendor   *VendorConfig   `yaml:"vendor"`
	SSRF     *SSRFConfig     `yaml:"ssrf"`
}

// DefaultsConfig holds C7 job-runtime timing knobs.
type DefaultsConfig struct {
	JobTimeoutSeconds  int `yaml:"job_timeout_seconds"`
	EventHistoryLimit  int `yaml:"event_history_limit"`
	JobTTLSeconds      int `yaml:"job_ttl_seconds"`
	MaxRetainedJobs    int `yaml:"max_retained_jobs"`
}

// VendorConfig holds C2 refresh-worker tuning.
type VendorConfig struct {
	MaxURLsPerRequest   int `yaml:"max_urls_per_request"`
	MaxWorkers          int `yaml:"max_workers"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// SSRFConfig names the hosts the vendor image-fetch proxy may dial.
type SSRFConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// ProvidersFileConfig is the parsed shape of providers.yaml: where each
// external collaborator lives, named by environment variable rather than by
// literal secret, keeping credentials out of the YAML file itself.
type ProvidersFileConfig struct {
	LLMProviders map[string]LLMProviderFileConfig `yaml:"llm_providers"`
	Embedding    *EndpointFileConfig               `yaml:"embedding"`
	Reranker     *EndpointFileConfig               `yaml:"reranker"`
	VectorStore  *VectorStoreFileConfig            `yaml:"vector_store"`
	Brightdata   *BrightdataFileConfig             `yaml:"brightdata"`
}

// LLMProviderFileConfig names one chat-completion provider.
type LLMProviderFileConfig struct {
	BaseURLEnv string `yaml:"base_url_env"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"model"`
}

// EndpointFileConfig names a base-URL/API-key pair resolved through the
// environment, shared shape for the embedding and reranker entries.
type EndpointFileConfig struct {
	BaseURLEnv string `yaml:"base_url_env"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

// VectorStoreFileConfig names the Qdrant address and collection names.
type VectorStoreFileConfig struct {
	QdrantAddrEnv     string `yaml:"qdrant_addr_env"`
	ProfileCollection string `yaml:"profile_collection"`
	PostsCollection   string `yaml:"posts_collection"`
}

// BrightdataFileConfig names the BrightData endpoint and per-platform
// dataset ids; snapshot triggers resolve a dataset id per platform.
type BrightdataFileConfig struct {
	BaseURLEnv        string            `yaml:"base_url_env"`
	APIKeyEnv         string            `yaml:"api_key_env"`
	DatasetIDsByPlatform map[string]string `yaml:"dataset_ids"`
}

// Config is the fully resolved, validated, ready-to-use configuration
// handed to cmd/creatord/main.go: the merge of FileConfig, built-in
// defaults, and environment-resolved provider credentials.
type Config struct {
	ConfigDir string

	Queues []string

	JobTimeout        time.Duration
	EventHistoryLimit int
	JobTTL            time.Duration
	MaxRetainedJobs   int

	VendorMaxURLsPerRequest int
	VendorMaxWorkers        int
	VendorPollInterval      time.Duration

	SSRFAllowedHosts []string

	LLMProviders map[string]ResolvedLLMProvider
	Embedding    ResolvedEndpoint
	Reranker     ResolvedEndpoint
	VectorStore  ResolvedVectorStore
	Brightdata   ResolvedBrightdata
}

// ResolvedLLMProvider is an LLM provider entry with its base URL and API key
// already read from the environment.
type ResolvedLLMProvider struct {
	BaseURL string
	APIKey  string
	Model   string
}

// ResolvedEndpoint is a base-URL/API-key pair already read from the
// environment; a zero value means the endpoint is unconfigured.
type ResolvedEndpoint struct {
	BaseURL string
	APIKey  string
}

// Configured reports whether this endpoint has a base URL to call.
func (e ResolvedEndpoint) Configured() bool { return e.BaseURL != "" }

// ResolvedVectorStore is the vector-store endpoint plus collection names.
type ResolvedVectorStore struct {
	Addr              string
	ProfileCollection string
	PostsCollection   string
}

// ResolvedBrightdata is the BrightData endpoint plus per-platform dataset ids.
type ResolvedBrightdata struct {
	BaseURL           string
	APIKey            string
	DatasetIDsByPlatform map[string]string
}

// Configured reports whether a BrightData endpoint was provided at all.
func (b ResolvedBrightdata) Configured() bool { return b.BaseURL != "" }
