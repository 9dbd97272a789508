// Package mitre scrapes the legacy cve.mitre.org keyword search.
package mitre

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
	"github.com/vulnscraper/vuln-scraper/utils"
)

const (
	searchURL       = "https://cve.mitre.org/cgi-bin/cvekey.cgi"
	detailURLFormat = "https://cve.mitre.org/cgi-bin/cvename.cgi?name=%s"
	maxResults      = 10
	maxReferences   = 5
	retry           = 2
)

type options struct {
	searchURL       string
	detailURLFormat string
	retry           int
	limiter         *ratelimit.Limiter
}

type option func(*options)

func WithSearchURL(url string) option {
	return func(opts *options) { opts.searchURL = url }
}

func WithDetailURLFormat(format string) option {
	return func(opts *options) { opts.detailURLFormat = format }
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
		searchURL:       searchURL,
		detailURLFormat: detailURLFormat,
		retry:           retry,
		limiter:         ratelimit.New(5, 10*time.Second),
	}
	for _, opt := range opts {
		opt(o)
	}
	return Client{options: o}
}

func (c Client) Source() types.Source {
	return types.SourceMitre
}

func (c Client) Search(ctx context.Context, req types.SearchRequest, _ types.Credentials) ([]types.VulnRecord, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	body, err := utils.FetchURL(ctx, c.searchURL+"?keyword="+url.QueryEscape(req.Query), nil, c.retry)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch MITRE search results: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, types.NewParseError("invalid MITRE search page", err)
	}

	var records []types.VulnRecord
	doc.Find("div#TableWithRules table tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true // header row
		}
		if len(records) >= maxResults {
			return false
		}

		cols := row.Find("td")
		if cols.Length() < 2 {
			return true
		}
		cveID := utils.TrimSpaceNewline(cols.Eq(0).Text())
		description := utils.TrimSpaceNewline(cols.Eq(1).Text())
		if cveID == "" && description == "" {
			return true
		}

		detailURL := fmt.Sprintf(c.detailURLFormat, cveID)
		refs := []string{detailURL}

		// The listing has no references; best effort from the detail page,
		// falling back to the bare row when it cannot be fetched.
		detailRefs, err := c.fetchReferences(ctx, detailURL)
		if err != nil {
			log.Printf("failed to fetch MITRE details for %s: %s", cveID, err)
		}
		refs = append(refs, detailRefs...)

		records = append(records, types.VulnRecord{
			CVEID:      strings.ToUpper(cveID),
			Title:      description,
			References: refs,
			Source:     types.SourceMitre,
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
		return nil, types.NewParseError("invalid MITRE detail page", err)
	}

	var refs []string
	doc.Find("table#refs tr td a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
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
