package github

import (
	"strings"
	"time"

	"github.com/vulnscraper/vuln-scraper/types"
)

type repoSearchResponse struct {
	TotalCount int        `json:"total_count"`
	Items      []repoItem `json:"items"`
}

type repoItem struct {
	FullName        string `json:"full_name"`
	HTMLURL         string `json:"html_url"`
	Description     string `json:"description"`
	StargazersCount int    `json:"stargazers_count"`
	UpdatedAt       string `json:"updated_at"`
}

type advisoriesByIdentifierQuery struct {
	SecurityAdvisories struct {
		Nodes []advisoryNode
	} `graphql:"securityAdvisories(identifier: {type: CVE, value: $cve}, first: $first)"`
}

type vulnerabilitiesByPackageQuery struct {
	SecurityVulnerabilities struct {
		Nodes []vulnerabilityNode
	} `graphql:"securityVulnerabilities(package: $package, first: $first, orderBy: {field: UPDATED_AT, direction: DESC})"`
}

type vulnerabilityNode struct {
	Severity string
	Package  struct {
		Name string
	}
	VulnerableVersionRange string
	Advisory               advisoryNode
}

type advisoryNode struct {
	GhsaID      string `graphql:"ghsaId"`
	Summary     string
	Description string
	Severity    string
	Permalink   string
	PublishedAt string
	Identifiers []identifier
	References  []advisoryReference
	CVSS        advisoryCVSS `graphql:"cvss"`
}

type identifier struct {
	Type  string
	Value string
}

type advisoryReference struct {
	URL string `graphql:"url"`
}

type advisoryCVSS struct {
	Score float64
}

// severityFromGitHub maps GitHub advisory severities onto ours. GitHub says
// MODERATE where CVSS says MEDIUM.
func severityFromGitHub(s string) types.Severity {
	switch strings.ToUpper(s) {
	case "LOW":
		return types.SeverityLow
	case "MODERATE", "MEDIUM":
		return types.SeverityMedium
	case "HIGH":
		return types.SeverityHigh
	case "CRITICAL":
		return types.SeverityCritical
	default:
		return types.SeverityNone
	}
}

func (n advisoryNode) toRecord() types.VulnRecord {
	var cveID string
	for _, id := range n.Identifiers {
		if id.Type == "CVE" {
			cveID = strings.ToUpper(id.Value)
			break
		}
	}

	title := n.Summary
	if len(n.Description) > len(title) {
		title = n.Description
	}

	var score *float64
	severity := severityFromGitHub(n.Severity)
	if n.CVSS.Score > 0 {
		s := n.CVSS.Score
		score = &s
		severity = types.SeverityFromScore(score)
	}

	refs := []string{}
	if n.Permalink != "" {
		refs = append(refs, n.Permalink)
	}
	for _, ref := range n.References {
		refs = append(refs, ref.URL)
	}

	published, _ := time.Parse(time.RFC3339, n.PublishedAt)

	return types.VulnRecord{
		CVEID:      cveID,
		Title:      title,
		CVSSScore:  score,
		Severity:   severity,
		References: refs,
		Source:     types.SourceGitHub,
		Published:  published,
		FetchedAt:  time.Now().UTC(),
	}
}
