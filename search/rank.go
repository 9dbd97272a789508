package search

import (
	"sort"

	"github.com/samber/lo"

	"github.com/vulnscraper/vuln-scraper/types"
)

// Rank sorts merged records in place: CVSS score descending (absent score
// sorts lowest), then corroboration count descending, then the trust rank of
// the best contributing source, then CVE ID for determinism. Pure sort, no
// side effects beyond the reorder.
func Rank(records []types.MergedRecord, policy Policy) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]

		as, bs := scoreOf(a), scoreOf(b)
		if as != bs {
			return as > bs
		}

		if len(a.ContributingSources) != len(b.ContributingSources) {
			return len(a.ContributingSources) > len(b.ContributingSources)
		}

		at, bt := bestTrust(a, policy), bestTrust(b, policy)
		if at != bt {
			return at < bt
		}

		return a.CVEID < b.CVEID
	})
}

func scoreOf(m types.MergedRecord) float64 {
	if m.CVSSScore == nil {
		return -1
	}
	return *m.CVSSScore
}

func bestTrust(m types.MergedRecord, policy Policy) int {
	ranks := lo.Map(m.ContributingSources, func(s types.Source, _ int) int {
		return policy.TrustRank(s)
	})
	if len(ranks) == 0 {
		return len(policy.TrustOrder)
	}
	return lo.Min(ranks)
}
