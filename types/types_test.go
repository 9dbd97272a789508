package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vulnscraper/vuln-scraper/types"
)

func floatPtr(f float64) *float64 {
	return &f
}

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		name  string
		score *float64
		want  types.Severity
	}{
		{name: "absent score", score: nil, want: types.SeverityNone},
		{name: "low", score: floatPtr(3.9), want: types.SeverityLow},
		{name: "medium", score: floatPtr(4.0), want: types.SeverityMedium},
		{name: "high", score: floatPtr(7.5), want: types.SeverityHigh},
		{name: "critical boundary", score: floatPtr(9.0), want: types.SeverityCritical},
		{name: "critical", score: floatPtr(9.8), want: types.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, types.SeverityFromScore(tt.score))
		})
	}
}

func TestNewSearchRequest(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantMode types.Mode
	}{
		{name: "CVE ID", query: "CVE-2021-41773", wantMode: types.ModeCVEID},
		{name: "lower case CVE ID", query: "cve-2021-41773", wantMode: types.ModeCVEID},
		{name: "product with version", query: "apache 2.4.49", wantMode: types.ModeProductVersion},
		{name: "bare product name", query: "apache httpd", wantMode: types.ModeAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := types.NewSearchRequest(tt.query, "")
			assert.Equal(t, tt.wantMode, req.Mode)
		})
	}
}

func TestSearchRequestProductVersion(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantProduct string
		wantVersion string
	}{
		{name: "product and version", query: "apache 2.4.49", wantProduct: "apache", wantVersion: "2.4.49"},
		{name: "two-part version", query: "nginx 1.18", wantProduct: "nginx", wantVersion: "1.18"},
		{name: "no version", query: "openssl", wantProduct: "openssl", wantVersion: ""},
		{name: "CVE ID is not a product", query: "CVE-2021-41773", wantProduct: "", wantVersion: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, version := types.NewSearchRequest(tt.query, "").ProductVersion()
			assert.Equal(t, tt.wantProduct, product)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestSearchRequestValidate(t *testing.T) {
	assert.Error(t, types.SearchRequest{}.Validate())
	assert.NoError(t, types.NewSearchRequest("apache", "").Validate())
}

func TestVulnRecordValid(t *testing.T) {
	assert.False(t, types.VulnRecord{}.Valid())
	assert.False(t, types.VulnRecord{CVEID: "  ", Title: "\n"}.Valid())
	assert.True(t, types.VulnRecord{CVEID: "CVE-2021-41773"}.Valid())
	assert.True(t, types.VulnRecord{Title: "path traversal"}.Valid())
}

func TestCVEID(t *testing.T) {
	assert.Equal(t, "CVE-2021-41773", types.NewSearchRequest("cve-2021-41773", "").CVEID())
	assert.Empty(t, types.NewSearchRequest("apache 2.4.49", "").CVEID())
}
