// Package exploitdb queries the Exploit-DB search endpoint. The site answers
// with DataTables JSON when asked via XMLHttpRequest.
package exploitdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
	"github.com/vulnscraper/vuln-scraper/utils"
)

const (
	searchURL        = "https://www.exploit-db.com/search"
	exploitURLFormat = "https://www.exploit-db.com/exploits/%d"
	maxResults       = 10
	retry            = 2
)

type options struct {
	baseURL string
	retry   int
	limiter *ratelimit.Limiter
}

type option func(*options)

func WithBaseURL(url string) option {
	return func(opts *options) { opts.baseURL = url }
}

func WithRetry(retry int) option {
	return func(opts *options) { opts.retry = retry }
}

func WithRateLimiter(l *ratelimit.Limiter) option {
	return func(opts *options) { opts.limiter = l }
}

type Client struct {
	*options
}

func NewClient(opts ...option) Client {
	o := &options{
		baseURL: searchURL,
		retry:   retry,
		limiter: ratelimit.New(5, 10*time.Second),
	}
	for _, opt := range opts {
		opt(o)
	}
	return Client{options: o}
}

func (c Client) Source() types.Source {
	return types.SourceExploitDB
}

func (c Client) Search(ctx context.Context, req types.SearchRequest, _ types.Credentials) ([]types.VulnRecord, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", req.Query)

	headers := map[string]string{
		"Accept":           "application/json",
		"X-Requested-With": "XMLHttpRequest",
	}

	body, err := utils.FetchURL(ctx, c.baseURL+"?"+q.Encode(), headers, c.retry)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch Exploit-DB search results: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewParseError("unexpected Exploit-DB response shape", err)
	}

	var records []types.VulnRecord
	for _, row := range resp.Data {
		if len(records) >= maxResults {
			break
		}
		if row.ID == 0 || row.Description == "" {
			continue
		}

		var cveID string
		if ids := utils.ExtractCVEIDs(row.Codes + " " + row.Description); len(ids) > 0 {
			cveID = ids[0]
		}

		published, _ := dateparse.ParseAny(row.DatePublished)

		title := strings.TrimSpace(row.Description)
		if row.Platform != "" {
			title = fmt.Sprintf("%s (%s)", title, row.Platform)
		}

		records = append(records, types.VulnRecord{
			CVEID:      cveID,
			Title:      title,
			References: []string{fmt.Sprintf(exploitURLFormat, row.ID)},
			Source:     types.SourceExploitDB,
			Published:  published,
			FetchedAt:  time.Now().UTC(),
		})
	}
	return records, nil
}
