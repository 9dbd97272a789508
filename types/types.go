package types

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// Source identifies which client produced a record.
type Source string

const (
	SourceMitre      Source = "MITRE"
	SourceGitHub     Source = "GITHUB"
	SourceNVD        Source = "NVD"
	SourceCVEOrg     Source = "CVEORG"
	SourceExploitDB  Source = "EXPLOITDB"
	SourceCVEDetails Source = "CVEDETAILS"
)

// AllSources lists every configured source in its default launch order.
var AllSources = []Source{
	SourceMitre,
	SourceGitHub,
	SourceNVD,
	SourceCVEOrg,
	SourceExploitDB,
	SourceCVEDetails,
}

func (s Source) String() string {
	return string(s)
}

type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank is used to pick the worst severity when no CVSS score is known.
var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityFromScore derives a severity from a CVSS base score.
// Thresholds follow CVSS v3: <4 LOW, <7 MEDIUM, <9 HIGH, >=9 CRITICAL.
func SeverityFromScore(score *float64) Severity {
	switch {
	case score == nil:
		return SeverityNone
	case *score < 4:
		return SeverityLow
	case *score < 7:
		return SeverityMedium
	case *score < 9:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// WorseSeverity returns the more severe of a and b.
func WorseSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

type Mode string

const (
	ModeAuto           Mode = "AUTO"
	ModeCVEID          Mode = "CVE_ID"
	ModeProductVersion Mode = "PRODUCT_VERSION"
)

var (
	cveIDRegexp   = regexp.MustCompile(`(?i)^CVE-\d{4}-\d{4,}$`)
	versionRegexp = regexp.MustCompile(`(\d+\.(?:\d+\.)*\d+)`)
)

// SearchRequest is a single immutable query. Mode is inferred from the query
// shape when left as AUTO.
type SearchRequest struct {
	Query      string
	Mode       Mode
	OutputPath string
}

func NewSearchRequest(query, outputPath string) SearchRequest {
	mode := ModeAuto
	query = strings.TrimSpace(query)
	if cveIDRegexp.MatchString(query) {
		mode = ModeCVEID
	} else if versionRegexp.MatchString(query) {
		mode = ModeProductVersion
	}
	return SearchRequest{
		Query:      query,
		Mode:       mode,
		OutputPath: outputPath,
	}
}

func (r SearchRequest) Validate() error {
	if r.Query == "" {
		return xerrors.New("empty query")
	}
	return nil
}

// CVEID returns the query in canonical CVE form when the request is a CVE
// lookup, or an empty string otherwise.
func (r SearchRequest) CVEID() string {
	if r.Mode != ModeCVEID {
		return ""
	}
	return strings.ToUpper(r.Query)
}

// ProductVersion splits the query into a best-effort product name and version
// string. Either may be empty.
func (r SearchRequest) ProductVersion() (string, string) {
	if r.Mode == ModeCVEID {
		return "", ""
	}
	version := versionRegexp.FindString(r.Query)
	if version == "" {
		return strings.TrimSpace(r.Query), ""
	}
	product := strings.TrimSpace(r.Query[:strings.Index(r.Query, version)])
	return product, version
}

// Credentials holds optional tokens raising per-source quotas. Absence is
// never fatal, only a lower quota.
type Credentials struct {
	GitHubToken string
}

// VulnRecord is the normalized unit every source client emits.
type VulnRecord struct {
	CVEID      string
	Title      string
	CVSSScore  *float64
	Severity   Severity
	Product    string
	Version    string
	References []string
	Source     Source
	Published  time.Time
	FetchedAt  time.Time
}

// Valid reports whether the record carries any information at all. Records
// with neither a CVE ID nor a description are dropped before merging.
func (r VulnRecord) Valid() bool {
	return strings.TrimSpace(r.CVEID) != "" || strings.TrimSpace(r.Title) != ""
}

// MergedRecord combines duplicate records reported by multiple sources.
type MergedRecord struct {
	CVEID               string    `json:"cve_id,omitempty"`
	CVSSScore           *float64  `json:"cvss_score,omitempty"`
	Severity            Severity  `json:"severity"`
	Title               string    `json:"title_or_description"`
	Product             string    `json:"product,omitempty"`
	Version             string    `json:"version,omitempty"`
	References          []string  `json:"references"`
	ContributingSources []Source  `json:"contributing_sources"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// SourceResult is the per-source outcome of one fetch: either records or a
// contained error, never both propagated further.
type SourceResult struct {
	Source  Source
	Records []VulnRecord
	Err     *SourceError
	Elapsed time.Duration
}
