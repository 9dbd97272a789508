package utils

import (
	"context"
	"crypto/rand"
	"log"
	"math"
	"math/big"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/parnurzeal/gorequest"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/types"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var cveIDPattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,}`)

// FetchURL returns the HTTP response body with retry. Failures are reported
// as typed source errors so callers can contain them per source.
func FetchURL(ctx context.Context, url string, headers map[string]string, retry int) ([]byte, error) {
	var res []byte
	var err error
	for i := 0; i <= retry; i++ {
		if i > 0 {
			wait := math.Pow(float64(i), 2) + float64(RandInt()%10)
			log.Printf("retry %s after %.0f seconds", url, wait)
			select {
			case <-ctx.Done():
				return nil, types.NewTimeout(ctx.Err())
			case <-time.After(time.Duration(wait) * time.Second):
			}
		}
		res, err = fetchURL(ctx, url, headers)
		if err == nil {
			return res, nil
		}
		var srcErr *types.SourceError
		if xerrors.As(err, &srcErr) && srcErr.Kind != types.ErrUnreachable {
			// rate limits, auth and timeouts don't get better with retries here
			return nil, err
		}
	}
	return nil, xerrors.Errorf("failed to fetch URL %s: %w", url, err)
}

func fetchURL(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req := gorequest.New().Get(url).Set("User-Agent", defaultUserAgent)
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, types.NewTimeout(ctx.Err())
		}
		req = req.Timeout(remaining)
	}
	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, body, errs := req.EndBytes()
	if len(errs) > 0 {
		if ctx.Err() != nil {
			return nil, types.NewTimeout(ctx.Err())
		}
		return nil, types.NewUnreachable(xerrors.Errorf("HTTP error. url: %s: %w", url, errs[0]))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusTooManyRequests:
		return nil, types.NewRateLimited(retryAfter(resp))
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, types.NewAuthRequired(url)
	default:
		return nil, types.NewUnreachable(xerrors.Errorf("HTTP error. status code: %d, url: %s", resp.StatusCode, url))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return time.Minute
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	return time.Minute
}

func RandInt() int {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return int(seed.Int64())
}

// TrimSpaceNewline deletes space character and newline character(CR/LF)
func TrimSpaceNewline(str string) string {
	str = strings.TrimSpace(str)
	return strings.Trim(str, "\r\n")
}

// ExtractCVEIDs returns every canonical CVE ID found in s, upper-cased.
func ExtractCVEIDs(s string) []string {
	var ids []string
	for _, m := range cveIDPattern.FindAllString(s, -1) {
		ids = append(ids, strings.ToUpper(m))
	}
	return ids
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}
