package frontier

import (
	"errors"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
	if cfg.Damping != DefaultDamping {
		t.Errorf("Damping = %f, want %f", cfg.Damping, DefaultDamping)
	}
	if cfg.CrawlDelay != DefaultCrawlDelay {
		t.Errorf("CrawlDelay = %v, want %v", cfg.CrawlDelay, DefaultCrawlDelay)
	}
	if cfg.RescoreThreshold != DefaultRescoreThreshold {
		t.Errorf("RescoreThreshold = %d, want %d", cfg.RescoreThreshold, DefaultRescoreThreshold)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "negative prior",
			mutate:  func(c *Config) { c.Prior = -1 },
			wantErr: ErrInvalidPrior,
		},
		{
			name:    "zero seed score",
			mutate:  func(c *Config) { c.SeedScore = 0 },
			wantErr: ErrInvalidPrior,
		},
		{
			name:    "damping of one",
			mutate:  func(c *Config) { c.Damping = 1.0 },
			wantErr: ErrInvalidDamping,
		},
		{
			name:    "zero epsilon",
			mutate:  func(c *Config) { c.Epsilon = 0 },
			wantErr: ErrInvalidEpsilon,
		},
		{
			name:    "zero iteration cap",
			mutate:  func(c *Config) { c.MaxIterations = 0 },
			wantErr: ErrInvalidMaxIterations,
		},
		{
			name:    "negative retry limit",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: ErrInvalidMaxRetries,
		},
		{
			name:    "backoff cap below base",
			mutate:  func(c *Config) { c.RetryBackoffCap = c.RetryBackoff / 2 },
			wantErr: ErrInvalidBackoff,
		},
		{
			name:    "negative crawl delay",
			mutate:  func(c *Config) { c.CrawlDelay = -time.Second },
			wantErr: ErrInvalidCrawlDelay,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.MaxConcurrent = 0 },
			wantErr: ErrInvalidConcurrency,
		},
		{
			name: "negative per-domain crawl delay",
			mutate: func(c *Config) {
				c.Politeness = map[string]DomainPolicy{
					"example.com": {CrawlDelay: -time.Second},
				}
			},
			wantErr: ErrInvalidCrawlDelay,
		},
		{
			name: "per-domain zero concurrency inherits and is valid",
			mutate: func(c *Config) {
				c.Politeness = map[string]DomainPolicy{
					"example.com": {CrawlDelay: 10 * time.Second},
				}
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultDir(t *testing.T) {
	t.Parallel()

	dir := DefaultDir()
	if dir == "" {
		t.Error("DefaultDir() returned an empty path")
	}
}
