// Package cveorg queries the CVE.org record API, the official replacement
// for the legacy MITRE keyword search.
package cveorg

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
	"github.com/vulnscraper/vuln-scraper/utils"
)

const (
	apiURL          = "https://www.cve.org/api/cves"
	recordURLFormat = "https://www.cve.org/cverecord?id="
	nvdURLFormat    = "https://nvd.nist.gov/vuln/detail/"
	resultsPerPage  = 20
	retry           = 2
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
		baseURL: apiURL,
		retry:   retry,
		limiter: ratelimit.New(5, 10*time.Second),
	}
	for _, opt := range opts {
		opt(o)
	}
	return Client{options: o}
}

func (c Client) Source() types.Source {
	return types.SourceCVEOrg
}

func (c Client) Search(ctx context.Context, req types.SearchRequest, _ types.Credentials) ([]types.VulnRecord, error) {
	if id := req.CVEID(); id != "" {
		record, err := c.fetchRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, nil
		}
		return []types.VulnRecord{*record}, nil
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("keyword", req.Query)
	q.Set("resultsPerPage", strconv.Itoa(resultsPerPage))
	q.Set("startIndex", "0")

	body, err := utils.FetchURL(ctx, c.baseURL+"?"+q.Encode(), jsonHeaders(), c.retry)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch CVE.org search results: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewParseError("unexpected CVE.org response shape", err)
	}

	var records []types.VulnRecord
	for _, v := range resp.Vulnerabilities {
		if v.CVEID == "" {
			continue
		}
		record, err := c.fetchRecord(ctx, v.CVEID)
		if err != nil || record == nil {
			// keep what the listing gave us when the detail lookup fails
			records = append(records, listingRecord(v))
			continue
		}
		records = append(records, *record)
	}
	return records, nil
}

func (c Client) fetchRecord(ctx context.Context, cveID string) (*types.VulnRecord, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	body, err := utils.FetchURL(ctx, c.baseURL+"/"+cveID, jsonHeaders(), c.retry)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch CVE.org record %s: %w", cveID, err)
	}

	var detail recordResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, types.NewParseError("unexpected CVE.org record shape", err)
	}
	if detail.CVEID == "" {
		return nil, nil
	}

	record := detail.toRecord()
	return &record, nil
}

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}
