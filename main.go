package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	githubql "github.com/shurcooL/githubv4"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/cvedetails"
	"github.com/vulnscraper/vuln-scraper/cveorg"
	"github.com/vulnscraper/vuln-scraper/exploitdb"
	"github.com/vulnscraper/vuln-scraper/export"
	"github.com/vulnscraper/vuln-scraper/github"
	"github.com/vulnscraper/vuln-scraper/mitre"
	"github.com/vulnscraper/vuln-scraper/nvd"
	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/search"
	"github.com/vulnscraper/vuln-scraper/types"
)

var (
	query      = flag.String("search", "", "search query (CVE ID, product name or product+version)")
	output     = flag.String("output", "", "write results as JSON to this file")
	timeout    = flag.Duration("timeout", 0, "overall fetch budget (default 30s)")
	policyPath = flag.String("policy", "", "optional YAML policy file (trust order, rate limits, fuzzy threshold)")
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()

	req := types.NewSearchRequest(*query, *output)
	if err := req.Validate(); err != nil {
		return xerrors.Errorf("invalid arguments: %w", err)
	}

	policy := search.DefaultPolicy()
	if *policyPath != "" {
		var err error
		if policy, err = search.LoadPolicy(*policyPath); err != nil {
			return xerrors.Errorf("failed to load policy: %w", err)
		}
	}
	if *timeout > 0 {
		policy.GlobalTimeout = *timeout
	}

	creds := types.Credentials{GitHubToken: os.Getenv("GITHUB_TOKEN")}

	var graphqlClient github.GraphqlClient
	if creds.GitHubToken != "" {
		src := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: creds.GitHubToken},
		)
		graphqlClient = githubql.NewClient(oauth2.NewClient(context.Background(), src))
	} else {
		log.Println("no GITHUB_TOKEN set, running GitHub search with reduced quota")
	}

	clients := []search.Client{
		mitre.NewClient(mitre.WithRateLimiter(limiterFor(policy, types.SourceMitre))),
		github.NewClient(graphqlClient, github.WithRateLimiter(limiterFor(policy, types.SourceGitHub))),
		nvd.NewClient(nvd.WithRateLimiter(limiterFor(policy, types.SourceNVD))),
		cveorg.NewClient(cveorg.WithRateLimiter(limiterFor(policy, types.SourceCVEOrg))),
		exploitdb.NewClient(exploitdb.WithRateLimiter(limiterFor(policy, types.SourceExploitDB))),
		cvedetails.NewClient(cvedetails.WithRateLimiter(limiterFor(policy, types.SourceCVEDetails))),
	}

	log.Printf("searching %d sources for %q", len(clients), req.Query)

	bar := pb.StartNew(len(clients))
	var mu sync.Mutex
	progress := func(ev search.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		if ev.State == search.StateSucceeded || ev.State == search.StateFailed {
			bar.Increment()
		}
	}

	orch := search.NewOrchestrator(clients, creds,
		search.WithTimeout(policy.GlobalTimeout),
		search.WithProgress(progress),
	)

	results, err := orch.Run(context.Background(), req)
	bar.Finish()
	if err != nil {
		return xerrors.Errorf("search failed: %w", err)
	}

	merged := search.Merge(results, policy)
	search.Rank(merged, policy)

	renderSummary(results)
	renderResults(merged)

	if req.OutputPath != "" {
		w := export.NewWriter(afero.NewOsFs())
		if err := w.Write(req.OutputPath, merged); err != nil {
			return xerrors.Errorf("failed to export results: %w", err)
		}
		log.Printf("results exported to %s", req.OutputPath)
	}

	return nil
}

func limiterFor(policy search.Policy, source types.Source) *ratelimit.Limiter {
	rl, ok := policy.RateLimits[source]
	if !ok {
		rl = search.RateLimit{MaxRequests: 5, PerInterval: 10 * time.Second}
	}
	return ratelimit.New(rl.MaxRequests, rl.PerInterval)
}
