// Package github queries GitHub for security advisories (GraphQL) and
// exploit/PoC repositories (REST search).
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	githubql "github.com/shurcooL/githubv4"
	"github.com/shurcooL/graphql"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
	"github.com/vulnscraper/vuln-scraper/utils"
)

const (
	repoSearchURL = "https://api.github.com/search/repositories"
	maxResults    = 10
	retry         = 2
)

// GraphqlClient queries the GitHub GraphQL API. Advisory search needs an
// authenticated client; pass nil to run with repository search only.
type GraphqlClient interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

type options struct {
	repoSearchURL string
	retry         int
	limiter       *ratelimit.Limiter
}

type option func(*options)

func WithRepoSearchURL(url string) option {
	return func(opts *options) { opts.repoSearchURL = url }
}

func WithRetry(retry int) option {
	return func(opts *options) { opts.retry = retry }
}

func WithRateLimiter(l *ratelimit.Limiter) option {
	return func(opts *options) { opts.limiter = l }
}

type Client struct {
	*options
	graphql GraphqlClient
}

func NewClient(graphqlClient GraphqlClient, opts ...option) Client {
	o := &options{
		repoSearchURL: repoSearchURL,
		retry:         retry,
		limiter:       ratelimit.New(10, time.Minute),
	}
	for _, opt := range opts {
		opt(o)
	}
	return Client{
		options: o,
		graphql: graphqlClient,
	}
}

func (c Client) Source() types.Source {
	return types.SourceGitHub
}

func (c Client) Search(ctx context.Context, req types.SearchRequest, creds types.Credentials) ([]types.VulnRecord, error) {
	var records []types.VulnRecord

	advisories, err := c.searchAdvisories(ctx, req)
	if err != nil {
		// advisory search degrades, repository search may still succeed
		log.Printf("GitHub advisory search degraded: %s", err)
	}
	records = append(records, advisories...)

	repos, err := c.searchRepos(ctx, req, creds)
	if err != nil {
		if len(records) > 0 {
			log.Printf("GitHub repository search failed: %s", err)
			return records, nil
		}
		return nil, xerrors.Errorf("GitHub search failed: %w", err)
	}
	return append(records, repos...), nil
}

func (c Client) searchAdvisories(ctx context.Context, req types.SearchRequest) ([]types.VulnRecord, error) {
	if c.graphql == nil {
		return nil, types.NewAuthRequired("GitHub advisory search needs a token, running with reduced quota")
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var nodes []advisoryNode
	if id := req.CVEID(); id != "" {
		var q advisoriesByIdentifierQuery
		variables := map[string]interface{}{
			"cve":   githubql.String(id),
			"first": graphql.Int(maxResults),
		}
		if err := c.graphql.Query(ctx, &q, variables); err != nil {
			return nil, xerrors.Errorf("graphql api error: %w", err)
		}
		nodes = q.SecurityAdvisories.Nodes
	} else {
		product, _ := req.ProductVersion()
		var q vulnerabilitiesByPackageQuery
		variables := map[string]interface{}{
			"package": githubql.String(product),
			"first":   graphql.Int(maxResults),
		}
		if err := c.graphql.Query(ctx, &q, variables); err != nil {
			return nil, xerrors.Errorf("graphql api error: %w", err)
		}
		for _, n := range q.SecurityVulnerabilities.Nodes {
			nodes = append(nodes, n.Advisory)
		}
	}

	var records []types.VulnRecord
	for _, node := range nodes {
		// GraphQL API may return nil nodes alongside valid ones, skip them
		if node.GhsaID == "" {
			continue
		}
		records = append(records, node.toRecord())
	}
	return records, nil
}

func (c Client) searchRepos(ctx context.Context, req types.SearchRequest, creds types.Credentials) ([]types.VulnRecord, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", req.Query+" in:name,description,readme exploit POC CVE")
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", fmt.Sprint(maxResults))

	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if creds.GitHubToken != "" {
		headers["Authorization"] = "token " + creds.GitHubToken
	}

	body, err := utils.FetchURL(ctx, c.repoSearchURL+"?"+q.Encode(), headers, c.retry)
	if err != nil {
		return nil, err
	}

	var resp repoSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewParseError("unexpected GitHub search response shape", err)
	}

	var records []types.VulnRecord
	for _, repo := range resp.Items {
		if repo.HTMLURL == "" {
			continue
		}

		var cveID string
		if ids := utils.ExtractCVEIDs(repo.FullName + " " + repo.Description); len(ids) > 0 {
			cveID = ids[0]
		}

		title := "GitHub: " + repo.FullName
		if repo.Description != "" {
			title += " - " + strings.TrimSpace(repo.Description)
		}

		published, _ := dateparse.ParseAny(repo.UpdatedAt)

		records = append(records, types.VulnRecord{
			CVEID: cveID,
			Title: title,
			References: []string{
				repo.HTMLURL,
				repo.HTMLURL + "/issues",
				repo.HTMLURL + "/releases",
			},
			Source:    types.SourceGitHub,
			Published: published,
			FetchedAt: time.Now().UTC(),
		})
	}
	return records, nil
}
