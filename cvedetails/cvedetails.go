// Package cvedetails scrapes the cvedetails.com vulnerability search pages.
package cvedetails

import (
	"bytes"
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
	"github.com/vulnscraper/vuln-scraper/utils"
)

const (
	baseURL       = "https://www.cvedetails.com"
	searchPath    = "/vulnerability-search.php"
	maxResults    = 10
	maxReferences = 5
	retry         = 2
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
		baseURL: baseURL,
		retry:   retry,
		limiter: ratelimit.New(2, 10*time.Second),
	}
	for _, opt := range opts {
		opt(o)
	}
	return Client{options: o}
}

func (c Client) Source() types.Source {
	return types.SourceCVEDetails
}

func (c Client) Search(ctx context.Context, req types.SearchRequest, _ types.Credentials) ([]types.VulnRecord, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	product, version := req.ProductVersion()

	q := url.Values{}
	q.Set("product", product)
	q.Set("version", version)
	q.Set("orderby", "3") // CVSS score
	q.Set("order", "DESC")

	body, err := utils.FetchURL(ctx, c.baseURL+searchPath+"?"+q.Encode(), nil, c.retry)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch CVE Details search results: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, types.NewParseError("invalid CVE Details search page", err)
	}

	var records []types.VulnRecord
	doc.Find("table.searchresults tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true // header row
		}
		if len(records) >= maxResults {
			return false
		}

		cols := row.Find("td")
		if cols.Length() < 7 {
			return true
		}

		cveID := strings.ToUpper(utils.TrimSpaceNewline(cols.Eq(1).Find("a").Text()))
		if cveID == "" {
			return true
		}
		description := utils.TrimSpaceNewline(cols.Eq(6).Text())

		var score *float64
		if cols.Length() > 7 {
			if v, err := strconv.ParseFloat(utils.TrimSpaceNewline(cols.Eq(7).Text()), 64); err == nil && v > 0 {
				score = &v
			}
		}

		detailURL := c.baseURL + "/cve/" + cveID
		refs := []string{detailURL}

		detailRefs, err := c.fetchReferences(ctx, detailURL)
		if err != nil {
			log.Printf("failed to fetch CVE Details page for %s: %s", cveID, err)
		}
		refs = append(refs, detailRefs...)

		records = append(records, types.VulnRecord{
			CVEID:      cveID,
			Title:      description,
			CVSSScore:  score,
			Severity:   types.SeverityFromScore(score),
			Product:    product,
			Version:    version,
			References: refs,
			Source:     types.SourceCVEDetails,
			FetchedAt:  time.Now().UTC(),
		})
		return true
	})

	return records, nil
}

func (c Client) fetchReferences(ctx context.Context, detailURL string) ([]string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	body, err := utils.FetchURL(ctx, detailURL, nil, 0)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, types.NewParseError("invalid CVE Details page", err)
	}

	var refs []string
	doc.Find("table.listtable tr td a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(refs) >= maxReferences {
			return false
		}
		if href, ok := a.Attr("href"); ok && strings.HasPrefix(href, "http") {
			refs = append(refs, href)
		}
		return true
	})
	return refs, nil
}
