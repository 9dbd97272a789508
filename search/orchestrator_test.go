package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnscraper/vuln-scraper/search"
	"github.com/vulnscraper/vuln-scraper/types"
)

type fakeClient struct {
	source  types.Source
	records []types.VulnRecord
	err     error
	delay   time.Duration
}

func (f fakeClient) Source() types.Source {
	return f.source
}

func (f fakeClient) Search(ctx context.Context, _ types.SearchRequest, _ types.Credentials) ([]types.VulnRecord, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func floatPtr(f float64) *float64 {
	return &f
}

func record(source types.Source, cveID string, score *float64) types.VulnRecord {
	return types.VulnRecord{
		CVEID:     cveID,
		Title:     "test record from " + source.String(),
		CVSSScore: score,
		Severity:  types.SeverityFromScore(score),
		Source:    source,
		FetchedAt: time.Now().UTC(),
	}
}

func TestOrchestratorRun(t *testing.T) {
	req := types.NewSearchRequest("apache 2.4.49", "")

	t.Run("all sources succeed", func(t *testing.T) {
		clients := []search.Client{
			fakeClient{source: types.SourceMitre, records: []types.VulnRecord{record(types.SourceMitre, "CVE-2021-41773", nil)}},
			fakeClient{source: types.SourceNVD, records: []types.VulnRecord{record(types.SourceNVD, "CVE-2021-41773", floatPtr(7.5))}},
		}

		orch := search.NewOrchestrator(clients, types.Credentials{}, search.WithTimeout(time.Second))
		results, err := orch.Run(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, types.SourceMitre, results[0].Source)
		assert.Equal(t, types.SourceNVD, results[1].Source)
		for _, res := range results {
			assert.Nil(t, res.Err)
			assert.Len(t, res.Records, 1)
		}
	})

	t.Run("partial failure is contained", func(t *testing.T) {
		clients := []search.Client{
			fakeClient{source: types.SourceMitre, err: types.NewRateLimited(time.Minute)},
			fakeClient{source: types.SourceNVD, records: []types.VulnRecord{record(types.SourceNVD, "CVE-2021-41773", floatPtr(7.5))}},
			fakeClient{source: types.SourceCVEOrg, err: types.NewParseError("bad html", nil)},
		}

		orch := search.NewOrchestrator(clients, types.Credentials{}, search.WithTimeout(time.Second))
		results, err := orch.Run(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, results, 3)

		require.NotNil(t, results[0].Err)
		assert.Equal(t, types.ErrRateLimited, results[0].Err.Kind)

		assert.Nil(t, results[1].Err)
		assert.Len(t, results[1].Records, 1)

		require.NotNil(t, results[2].Err)
		assert.Equal(t, types.ErrParse, results[2].Err.Kind)
	})

	t.Run("straggler is recorded as timeout", func(t *testing.T) {
		clients := []search.Client{
			fakeClient{source: types.SourceNVD, records: []types.VulnRecord{record(types.SourceNVD, "CVE-2021-41773", floatPtr(7.5))}},
			fakeClient{source: types.SourceCVEDetails, delay: time.Minute},
		}

		orch := search.NewOrchestrator(clients, types.Credentials{}, search.WithTimeout(50*time.Millisecond))
		results, err := orch.Run(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Nil(t, results[0].Err)
		require.NotNil(t, results[1].Err)
		assert.Equal(t, types.ErrTimeout, results[1].Err.Kind)
		assert.Empty(t, results[1].Records)
	})

	t.Run("every source failing still yields a result set", func(t *testing.T) {
		clients := []search.Client{
			fakeClient{source: types.SourceMitre, err: types.NewUnreachable(nil)},
			fakeClient{source: types.SourceNVD, err: types.NewUnreachable(nil)},
		}

		orch := search.NewOrchestrator(clients, types.Credentials{}, search.WithTimeout(time.Second))
		results, err := orch.Run(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, results, 2)

		merged := search.Merge(results, search.DefaultPolicy())
		assert.Empty(t, merged)
	})

	t.Run("empty query is rejected before any fetch", func(t *testing.T) {
		orch := search.NewOrchestrator([]search.Client{fakeClient{source: types.SourceNVD}}, types.Credentials{})
		_, err := orch.Run(context.Background(), types.SearchRequest{})
		assert.ErrorContains(t, err, "empty query")
	})

	t.Run("zero sources is rejected", func(t *testing.T) {
		orch := search.NewOrchestrator(nil, types.Credentials{})
		_, err := orch.Run(context.Background(), req)
		assert.ErrorContains(t, err, "no sources configured")
	})
}

func TestOrchestratorProgressEvents(t *testing.T) {
	clients := []search.Client{
		fakeClient{source: types.SourceNVD, records: []types.VulnRecord{record(types.SourceNVD, "CVE-2021-41773", floatPtr(7.5))}},
		fakeClient{source: types.SourceMitre, err: types.NewUnreachable(nil)},
	}

	var events []search.ProgressEvent
	orch := search.NewOrchestrator(clients, types.Credentials{},
		search.WithTimeout(time.Second),
		search.WithProgress(func(ev search.ProgressEvent) {
			events = append(events, ev)
		}),
	)

	_, err := orch.Run(context.Background(), types.NewSearchRequest("apache", ""))
	require.NoError(t, err)

	byState := map[search.ProgressState][]search.ProgressEvent{}
	for _, ev := range events {
		byState[ev.State] = append(byState[ev.State], ev)
	}

	assert.Len(t, byState[search.StateStarted], 2)
	require.Len(t, byState[search.StateSucceeded], 1)
	assert.Equal(t, types.SourceNVD, byState[search.StateSucceeded][0].Source)
	assert.Equal(t, 1, byState[search.StateSucceeded][0].Count)
	require.Len(t, byState[search.StateFailed], 1)
	assert.Equal(t, types.SourceMitre, byState[search.StateFailed][0].Source)
}

// MITRE reports the CVE with a score, GitHub contributes an exploit
// reference without one; both collapse into a single merged record.
func TestSearchEndToEnd(t *testing.T) {
	mitreRecord := types.VulnRecord{
		CVEID:      "CVE-2021-41773",
		Title:      "A flaw was found in a change made to path normalization in Apache HTTP Server 2.4.49.",
		CVSSScore:  floatPtr(7.5),
		Severity:   types.SeverityHigh,
		References: []string{"https://cve.mitre.org/cgi-bin/cvename.cgi?name=CVE-2021-41773"},
		Source:     types.SourceMitre,
	}
	githubRecord := types.VulnRecord{
		CVEID:      "cve-2021-41773",
		Title:      "GitHub: poc/CVE-2021-41773 - Apache path traversal exploit",
		References: []string{"https://github.com/poc/CVE-2021-41773"},
		Source:     types.SourceGitHub,
	}

	clients := []search.Client{
		fakeClient{source: types.SourceMitre, records: []types.VulnRecord{mitreRecord}},
		fakeClient{source: types.SourceGitHub, records: []types.VulnRecord{githubRecord}},
	}

	orch := search.NewOrchestrator(clients, types.Credentials{}, search.WithTimeout(time.Second))
	results, err := orch.Run(context.Background(), types.NewSearchRequest("CVE-2021-41773", ""))
	require.NoError(t, err)

	policy := search.DefaultPolicy()
	merged := search.Merge(results, policy)
	search.Rank(merged, policy)

	require.Len(t, merged, 1)
	got := merged[0]
	assert.Equal(t, "CVE-2021-41773", got.CVEID)
	require.NotNil(t, got.CVSSScore)
	assert.Equal(t, 7.5, *got.CVSSScore)
	assert.Equal(t, types.SeverityHigh, got.Severity)
	assert.Equal(t, []types.Source{types.SourceMitre, types.SourceGitHub}, got.ContributingSources)
	assert.Contains(t, got.References, "https://github.com/poc/CVE-2021-41773")
}
