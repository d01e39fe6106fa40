package config

// builtinFileConfig returns the built-in config.yaml defaults, merged
// underneath whatever the user's config.yaml supplies via mergo.Merge in
// load().
func builtinFileConfig() *FileConfig {
	return &FileConfig{
		Queues: []string{"default", "search", "pipeline"},
		Defaults: &DefaultsConfig{
			JobTimeoutSeconds: 900,
			EventHistoryLimit: 100,
			JobTTLSeconds:     3600,
			MaxRetainedJobs:   1000,
		},
		Vendor: &VendorConfig{
			MaxURLsPerRequest:   50,
			MaxWorkers:          8,
			PollIntervalSeconds: 5,
		},
		SSRF: &SSRFConfig{
			AllowedHosts: []string{"*.brightdata.com", "cdn.brightdata.com"},
		},
	}
}
