package config

import "fmt"

// Validator validates a resolved Config, section by section, stopping at
// the first failure.
type Validator struct {
	cfg *Config
}

func NewValidator(cfg *Config) *Validator { return &Validator{cfg: cfg} }

func (v *Validator) ValidateAll() error {
	if err := v.validateQueues(); err != nil {
		return fmt.Errorf("%w: queue validation failed: %v", ErrValidationFailed, err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("%w: defaults validation failed: %v", ErrValidationFailed, err)
	}
	if err := v.validateVendor(); err != nil {
		return fmt.Errorf("%w: vendor validation failed: %v", ErrValidationFailed, err)
	}
	if err := v.validateVectorStore(); err != nil {
		return fmt.Errorf("%w: vector_store validation failed: %v", ErrValidationFailed, err)
	}
	return nil
}

func (v *Validator) validateQueues() error {
	if len(v.cfg.Queues) == 0 {
		return NewValidationError("queues", "", fmt.Errorf("at least one queue must be declared"))
	}
	seen := make(map[string]bool, len(v.cfg.Queues))
	for _, q := range v.cfg.Queues {
		if q == "" {
			return NewValidationError("queues", "", fmt.Errorf("queue name must not be empty"))
		}
		if seen[q] {
			return NewValidationError("queues", q, fmt.Errorf("duplicate queue name"))
		}
		seen[q] = true
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	if v.cfg.JobTimeout <= 0 {
		return NewValidationError("defaults", "job_timeout_seconds", fmt.Errorf("must be positive"))
	}
	if v.cfg.EventHistoryLimit <= 0 {
		return NewValidationError("defaults", "event_history_limit", fmt.Errorf("must be positive"))
	}
	if v.cfg.MaxRetainedJobs <= 0 {
		return NewValidationError("defaults", "max_retained_jobs", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateVendor() error {
	if v.cfg.VendorMaxURLsPerRequest <= 0 {
		return NewValidationError("vendor", "max_urls_per_request", fmt.Errorf("must be positive"))
	}
	if v.cfg.VendorMaxWorkers <= 0 {
		return NewValidationError("vendor", "max_workers", fmt.Errorf("must be positive"))
	}
	if v.cfg.VendorPollInterval <= 0 {
		return NewValidationError("vendor", "poll_interval_seconds", fmt.Errorf("must be positive"))
	}
	return nil
}

// validateVectorStore does not require an address at load time: a missing
// Qdrant address surfaces as apperr.ErrConfigError at the call site
// instead, since a vector-store-less config is legitimate for unit tests
// and local tooling.
func (v *Validator) validateVectorStore() error {
	vs := v.cfg.VectorStore
	if vs.Addr != "" && vs.ProfileCollection == "" {
		return NewValidationError("vector_store", "profile_collection", fmt.Errorf("required when an address is configured"))
	}
	if vs.Addr != "" && vs.PostsCollection == "" {
		return NewValidationError("vector_store", "posts_collection", fmt.Errorf("required when an address is configured"))
	}
	return nil
}
