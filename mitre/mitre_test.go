package mitre

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
)

func TestClient_Search(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/cgi-bin/cvekey.cgi", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "apache 2.4.49", r.URL.Query().Get("keyword"))
			http.ServeFile(w, r, "testdata/search.html")
		})
		mux.HandleFunc("/cgi-bin/cvename.cgi", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, "testdata/detail.html")
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		client := NewClient(
			WithSearchURL(ts.URL+"/cgi-bin/cvekey.cgi"),
			WithDetailURLFormat(ts.URL+"/cgi-bin/cvename.cgi?name=%s"),
			WithRetry(0),
			WithRateLimiter(ratelimit.New(100, time.Second)),
		)

		req := types.NewSearchRequest("apache 2.4.49", "")

		records, err := client.Search(context.Background(), req, types.Credentials{})
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "CVE-2021-41773", records[0].CVEID)
		assert.Contains(t, records[0].Title, "path normalization in Apache HTTP Server 2.4.49")
		assert.Equal(t, types.SourceMitre, records[0].Source)
		assert.Contains(t, records[0].References, "https://www.exploit-db.com/exploits/50383")

		assert.Equal(t, "CVE-2021-42013", records[1].CVEID)
	})

	t.Run("detail page failure keeps the listing row", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/cgi-bin/cvekey.cgi", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, "testdata/search.html")
		})
		mux.HandleFunc("/cgi-bin/cvename.cgi", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		client := NewClient(
			WithSearchURL(ts.URL+"/cgi-bin/cvekey.cgi"),
			WithDetailURLFormat(ts.URL+"/cgi-bin/cvename.cgi?name=%s"),
			WithRetry(0),
			WithRateLimiter(ratelimit.New(100, time.Second)),
		)

		req := types.NewSearchRequest("apache 2.4.49", "")

		records, err := client.Search(context.Background(), req, types.Credentials{})
		require.NoError(t, err)
		require.Len(t, records, 2)

		// still carries the detail URL even though the page could not be read
		assert.Len(t, records[0].References, 1)
		assert.Contains(t, records[0].References[0], "name=CVE-2021-41773")
	})

	t.Run("sad path with unreachable server", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close()

		client := NewClient(
			WithSearchURL(ts.URL),
			WithRetry(0),
			WithRateLimiter(ratelimit.New(100, time.Second)),
		)

		req := types.NewSearchRequest("apache 2.4.49", "")

		_, err := client.Search(context.Background(), req, types.Credentials{})
		require.Error(t, err)
		assert.Equal(t, types.ErrUnreachable, types.AsSourceError(err).Kind)
	})
}
