// Package search implements the multi-source fetch-and-merge engine: it fans
// a query out to every configured source client concurrently, contains
// per-source failures, deduplicates overlapping results and ranks the merged
// list.
package search

import (
	"context"

	"github.com/vulnscraper/vuln-scraper/types"
)

// Client is the capability contract every source adapter implements.
//
// Search must respect ctx (abort with a TIMEOUT error once it expires), must
// skip malformed individual entries instead of failing wholesale, and must
// return records already filtered to loosely match the request. Credentials
// are optional; a missing token lowers the quota, it never hard-fails.
type Client interface {
	Source() types.Source
	Search(ctx context.Context, req types.SearchRequest, creds types.Credentials) ([]types.VulnRecord, error)
}
