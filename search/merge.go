package search

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/vulnscraper/vuln-scraper/types"
)

// Merge flattens all successful source results into one deduplicated list.
// Records sharing a CVE ID (case-insensitive) always collapse into a single
// MergedRecord. Records without a CVE ID are grouped fuzzily by normalized
// product+version and description token overlap; under-merging is preferred,
// two distinct vulnerabilities must never be silently merged.
func Merge(results []types.SourceResult, policy Policy) []types.MergedRecord {
	var records []types.VulnRecord
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		for _, r := range res.Records {
			if r.Valid() {
				records = append(records, r)
			}
		}
	}

	groups := partition(records, policy.FuzzyThreshold)

	merged := make([]types.MergedRecord, 0, len(groups))
	for _, g := range groups {
		merged = append(merged, mergeGroup(g, policy))
	}

	// Canonical pre-rank order so the result is independent of source
	// completion order.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CVEID != merged[j].CVEID {
			return merged[i].CVEID < merged[j].CVEID
		}
		return merged[i].Title < merged[j].Title
	})
	return merged
}

func partition(records []types.VulnRecord, threshold float64) [][]types.VulnRecord {
	byCVE := make(map[string][]types.VulnRecord)
	var keyless []types.VulnRecord
	for _, r := range records {
		if id := strings.ToUpper(strings.TrimSpace(r.CVEID)); id != "" {
			byCVE[id] = append(byCVE[id], r)
			continue
		}
		keyless = append(keyless, r)
	}

	var groups [][]types.VulnRecord
	for _, id := range lo.Keys(byCVE) {
		groups = append(groups, byCVE[id])
	}

	// Keyless records are matched in a canonical order so that grouping does
	// not depend on input order.
	sort.Slice(keyless, func(i, j int) bool {
		return fuzzyKey(keyless[i]) < fuzzyKey(keyless[j]) ||
			(fuzzyKey(keyless[i]) == fuzzyKey(keyless[j]) && keyless[i].Title < keyless[j].Title)
	})

	var fuzzyGroups [][]types.VulnRecord
next:
	for _, r := range keyless {
		for i, g := range fuzzyGroups {
			if fuzzyKey(g[0]) != fuzzyKey(r) {
				continue
			}
			if tokenOverlap(g[0].Title, r.Title) >= threshold {
				fuzzyGroups[i] = append(fuzzyGroups[i], r)
				continue next
			}
		}
		fuzzyGroups = append(fuzzyGroups, []types.VulnRecord{r})
	}

	return append(groups, fuzzyGroups...)
}

// fuzzyKey is the normalized product+version pair used to group records that
// carry no CVE ID.
func fuzzyKey(r types.VulnRecord) string {
	return normalize(r.Product) + "|" + normalize(r.Version)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenOverlap returns the ratio of shared tokens between a and b over the
// larger token set. The strict denominator under-merges rather than
// over-merges.
func tokenOverlap(a, b string) float64 {
	ta := lo.Uniq(strings.Fields(strings.ToLower(a)))
	tb := lo.Uniq(strings.Fields(strings.ToLower(b)))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := len(lo.Intersect(ta, tb))
	return float64(shared) / float64(max(len(ta), len(tb)))
}

func mergeGroup(group []types.VulnRecord, policy Policy) types.MergedRecord {
	m := types.MergedRecord{}

	for _, r := range group {
		if m.CVEID == "" && r.CVEID != "" {
			m.CVEID = strings.ToUpper(strings.TrimSpace(r.CVEID))
		}
		// higher-fidelity sources may under-report, the maximum wins
		if r.CVSSScore != nil && (m.CVSSScore == nil || *r.CVSSScore > *m.CVSSScore) {
			score := *r.CVSSScore
			m.CVSSScore = &score
		}
		if longerTitle(r.Title, m.Title) {
			m.Title = r.Title
		}
		if r.FetchedAt.After(m.FetchedAt) {
			m.FetchedAt = r.FetchedAt
		}
		m.References = append(m.References, r.References...)
	}

	if m.CVSSScore != nil {
		m.Severity = types.SeverityFromScore(m.CVSSScore)
	} else {
		m.Severity = types.SeverityNone
		for _, r := range group {
			m.Severity = types.WorseSeverity(m.Severity, r.Severity)
		}
	}

	// Conflicting product/version strings resolve to the most trusted source.
	byTrust := make([]types.VulnRecord, len(group))
	copy(byTrust, group)
	sort.SliceStable(byTrust, func(i, j int) bool {
		return policy.TrustRank(byTrust[i].Source) < policy.TrustRank(byTrust[j].Source)
	})
	for _, r := range byTrust {
		if m.Product == "" && r.Product != "" {
			m.Product = r.Product
		}
		if m.Version == "" && r.Version != "" {
			m.Version = r.Version
		}
	}

	m.References = lo.Uniq(m.References)
	sort.Strings(m.References)

	m.ContributingSources = lo.Uniq(lo.Map(group, func(r types.VulnRecord, _ int) types.Source {
		return r.Source
	}))
	sort.Slice(m.ContributingSources, func(i, j int) bool {
		return policy.TrustRank(m.ContributingSources[i]) < policy.TrustRank(m.ContributingSources[j])
	})

	return m
}

// longerTitle prefers the longest non-empty description, breaking length ties
// lexicographically so merging stays order-independent.
func longerTitle(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	return candidate < current
}
