// Package nvd queries the NVD REST API 2.0 keyword search.
package nvd

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
	"github.com/vulnscraper/vuln-scraper/utils"
)

const (
	apiURL         = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	detailURL      = "https://nvd.nist.gov/vuln/detail/"
	resultsPerPage = 20
	maxReferences  = 5
	retry          = 2
)

type options struct {
	baseURL string
	apiKey  string
	retry   int
	limiter *ratelimit.Limiter
}

type option func(*options)

func WithBaseURL(url string) option {
	return func(opts *options) { opts.baseURL = url }
}

func WithAPIKey(apiKey string) option {
	return func(opts *options) { opts.apiKey = apiKey }
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
		apiKey:  os.Getenv("NVD_API_KEY"),
		retry:   retry,
		limiter: ratelimit.New(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(o)
	}
	return Client{options: o}
}

func (c Client) Source() types.Source {
	return types.SourceNVD
}

// Search tries several keyword strategies against the API and stops at the
// first one returning matches.
func (c Client) Search(ctx context.Context, req types.SearchRequest, _ types.Credentials) ([]types.VulnRecord, error) {
	product, version := req.ProductVersion()

	var keywords []string
	if id := req.CVEID(); id != "" {
		keywords = append(keywords, id)
	} else {
		if product != "" && version != "" {
			keywords = append(keywords, product+" "+version)
		}
		keywords = append(keywords, req.Query+" vulnerability", req.Query)
	}

	var lastErr error
	for _, keyword := range keywords {
		entry, err := c.fetchPage(ctx, keyword)
		if err != nil {
			lastErr = err
			continue
		}
		if records := c.parse(entry, product, version); len(records) > 0 {
			return records, nil
		}
	}
	if lastErr != nil {
		return nil, xerrors.Errorf("NVD search failed: %w", lastErr)
	}
	return nil, nil
}

func (c Client) fetchPage(ctx context.Context, keyword string) (entry, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return entry{}, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return entry{}, xerrors.Errorf("unable to parse %q base url: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("keywordSearch", keyword)
	q.Set("resultsPerPage", strconv.Itoa(resultsPerPage))
	u.RawQuery = q.Encode()

	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["apiKey"] = c.apiKey
	}

	body, err := utils.FetchURL(ctx, u.String(), headers, c.retry)
	if err != nil {
		return entry{}, err
	}

	var e entry
	if err := json.Unmarshal(body, &e); err != nil {
		return entry{}, types.NewParseError("unexpected NVD response shape", err)
	}
	return e, nil
}

func (c Client) parse(e entry, product, version string) []types.VulnRecord {
	var records []types.VulnRecord
	for _, v := range e.Vulnerabilities {
		cve := v.Cve
		if cve.ID == "" {
			continue
		}

		var description string
		for _, d := range cve.Descriptions {
			if d.Lang == "en" {
				description = d.Value
				break
			}
		}

		score := cve.Metrics.baseScore()
		refs := []string{detailURL + cve.ID}
		for i, ref := range cve.References {
			if i >= maxReferences {
				break
			}
			refs = append(refs, ref.URL)
		}

		published, _ := time.Parse("2006-01-02T15:04:05.000", cve.Published)

		records = append(records, types.VulnRecord{
			CVEID:      cve.ID,
			Title:      description,
			CVSSScore:  score,
			Severity:   types.SeverityFromScore(score),
			Product:    product,
			Version:    version,
			References: refs,
			Source:     types.SourceNVD,
			Published:  published,
			FetchedAt:  time.Now().UTC(),
		})
	}
	return records
}
