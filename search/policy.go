package search

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/vulnscraper/vuln-scraper/types"
)

const (
	defaultGlobalTimeout  = 30 * time.Second
	defaultFuzzyThreshold = 0.8
)

// RateLimit caps a source at MaxRequests per PerInterval.
type RateLimit struct {
	MaxRequests int
	PerInterval time.Duration
}

// Policy collects the tunable knobs: source trust order, the fuzzy-dedup
// similarity threshold, the global fetch timeout and per-source rate limits.
// None of these are hard-coded elsewhere so they can be re-tuned from a file.
type Policy struct {
	TrustOrder     []types.Source
	FuzzyThreshold float64
	GlobalTimeout  time.Duration
	RateLimits     map[types.Source]RateLimit
}

// DefaultPolicy mirrors the request intervals the public sources tolerate:
// NVD wants 6 seconds between unauthenticated requests, CVE Details throttles
// aggressively, the rest accept roughly one request every two seconds.
func DefaultPolicy() Policy {
	return Policy{
		TrustOrder: []types.Source{
			types.SourceNVD,
			types.SourceMitre,
			types.SourceCVEOrg,
			types.SourceGitHub,
			types.SourceExploitDB,
			types.SourceCVEDetails,
		},
		FuzzyThreshold: defaultFuzzyThreshold,
		GlobalTimeout:  defaultGlobalTimeout,
		RateLimits: map[types.Source]RateLimit{
			types.SourceMitre:      {MaxRequests: 5, PerInterval: 10 * time.Second},
			types.SourceGitHub:     {MaxRequests: 10, PerInterval: 60 * time.Second},
			types.SourceNVD:        {MaxRequests: 5, PerInterval: 30 * time.Second},
			types.SourceCVEOrg:     {MaxRequests: 5, PerInterval: 10 * time.Second},
			types.SourceExploitDB:  {MaxRequests: 5, PerInterval: 10 * time.Second},
			types.SourceCVEDetails: {MaxRequests: 2, PerInterval: 10 * time.Second},
		},
	}
}

// TrustRank returns the position of s in the trust order; lower is more
// trusted. Unknown sources rank last.
func (p Policy) TrustRank(s types.Source) int {
	for i, t := range p.TrustOrder {
		if t == s {
			return i
		}
	}
	return len(p.TrustOrder)
}

type policyFile struct {
	TrustOrder     []string `yaml:"trust_order"`
	FuzzyThreshold *float64 `yaml:"fuzzy_threshold"`
	GlobalTimeout  string   `yaml:"global_timeout"`
	RateLimits     map[string]struct {
		MaxRequests int    `yaml:"max_requests"`
		PerInterval string `yaml:"per_interval"`
	} `yaml:"rate_limits"`
}

// LoadPolicy reads a YAML policy file and overlays it on the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, xerrors.Errorf("failed to read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return Policy{}, xerrors.Errorf("failed to unmarshal policy file: %w", err)
	}

	if len(pf.TrustOrder) > 0 {
		policy.TrustOrder = make([]types.Source, 0, len(pf.TrustOrder))
		for _, s := range pf.TrustOrder {
			policy.TrustOrder = append(policy.TrustOrder, types.Source(s))
		}
	}
	if pf.FuzzyThreshold != nil {
		if *pf.FuzzyThreshold < 0 || *pf.FuzzyThreshold > 1 {
			return Policy{}, xerrors.Errorf("fuzzy_threshold out of range: %f", *pf.FuzzyThreshold)
		}
		policy.FuzzyThreshold = *pf.FuzzyThreshold
	}
	if pf.GlobalTimeout != "" {
		d, err := time.ParseDuration(pf.GlobalTimeout)
		if err != nil {
			return Policy{}, xerrors.Errorf("invalid global_timeout: %w", err)
		}
		policy.GlobalTimeout = d
	}
	for name, rl := range pf.RateLimits {
		d, err := time.ParseDuration(rl.PerInterval)
		if err != nil {
			return Policy{}, xerrors.Errorf("invalid per_interval for %s: %w", name, err)
		}
		policy.RateLimits[types.Source(name)] = RateLimit{
			MaxRequests: rl.MaxRequests,
			PerInterval: d,
		}
	}

	return policy, nil
}
