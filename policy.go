package frontier

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultPolicyFile is the default politeness policy file name.
const DefaultPolicyFile = ".frontier.yaml"

// ErrPolicyNotFound is returned when the politeness policy file does not
// exist. Callers should treat it as fatal only when the path was given
// explicitly; an absent default file just means default politeness.
var ErrPolicyNotFound = errors.New("frontier: politeness policy file not found")

// DomainPolicy holds the politeness overrides for a single registered
// domain. Zero-valued fields inherit the configured defaults.
type DomainPolicy struct {
	// CrawlDelay is the minimum time between dispatches to the domain.
	CrawlDelay time.Duration `yaml:"crawlDelay,omitempty"`

	// MaxConcurrent caps the domain's concurrently outstanding crawls.
	// Zero inherits the global default.
	MaxConcurrent int `yaml:"maxConcurrent,omitempty"`
}

// PolicyFile represents the structure of the politeness policy file.
//
// Example:
//
//	defaults:
//	  crawlDelay: 1s
//	  maxConcurrent: 2
//	domains:
//	  example.com:
//	    crawlDelay: 10s
//	    maxConcurrent: 1
//	  archive.org:
//	    crawlDelay: 500ms
type PolicyFile struct {
	// Defaults applies to every domain without an explicit entry.
	Defaults DomainPolicy `yaml:"defaults,omitempty"`

	// Domains maps registered domains (eTLD+1, e.g. "example.co.uk") to
	// their politeness overrides.
	Domains map[string]DomainPolicy `yaml:"domains,omitempty"`
}

// LoadPolicyFile loads a politeness policy from a YAML file.
// If the file does not exist, it returns ErrPolicyNotFound.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided policy path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}

	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if pf.Domains == nil {
		pf.Domains = make(map[string]DomainPolicy)
	}
	return &pf, nil
}

// FindPolicyFile searches for the politeness policy file in the following
// order:
//  1. If path is specified, use it directly
//  2. Look for .frontier.yaml in the current directory
//  3. Look for it in the XDG config directory
//
// Returns the path if found, or an empty string if not found.
func FindPolicyFile(path string) string {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultPolicyFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := filepath.Join(xdg.ConfigHome, AppName, DefaultPolicyFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// ApplyPolicyFile merges a loaded policy file into the configuration:
// file defaults override the config-level politeness defaults where set,
// and per-domain entries replace existing ones wholesale.
func (c *Config) ApplyPolicyFile(pf *PolicyFile) {
	if pf.Defaults.CrawlDelay > 0 {
		c.CrawlDelay = pf.Defaults.CrawlDelay
	}
	if pf.Defaults.MaxConcurrent > 0 {
		c.MaxConcurrent = pf.Defaults.MaxConcurrent
	}
	if len(pf.Domains) == 0 {
		return
	}
	if c.Politeness == nil {
		c.Politeness = make(map[string]DomainPolicy, len(pf.Domains))
	}
	for domain, policy := range pf.Domains {
		c.Politeness[domain] = policy
	}
}
