package cveorg

import (
	"strings"
	"time"

	"github.com/vulnscraper/vuln-scraper/types"
)

type searchResponse struct {
	TotalResults    int            `json:"totalResults"`
	Vulnerabilities []listingEntry `json:"vulnerabilities"`
}

type listingEntry struct {
	CVEID       string `json:"cveId"`
	Description string `json:"description"`
}

type recordResponse struct {
	CVEID       string `json:"cveId"`
	Description struct {
		Description string `json:"description"`
	} `json:"description"`
	Metrics struct {
		CvssV3 struct {
			BaseScore float64 `json:"baseScore"`
		} `json:"cvssV3"`
	} `json:"metrics"`
}

func (r recordResponse) toRecord() types.VulnRecord {
	cveID := strings.ToUpper(r.CVEID)

	var score *float64
	if r.Metrics.CvssV3.BaseScore > 0 {
		s := r.Metrics.CvssV3.BaseScore
		score = &s
	}

	return types.VulnRecord{
		CVEID:      cveID,
		Title:      r.Description.Description,
		CVSSScore:  score,
		Severity:   types.SeverityFromScore(score),
		References: recordReferences(cveID),
		Source:     types.SourceCVEOrg,
		FetchedAt:  time.Now().UTC(),
	}
}

func listingRecord(e listingEntry) types.VulnRecord {
	cveID := strings.ToUpper(e.CVEID)
	return types.VulnRecord{
		CVEID:      cveID,
		Title:      e.Description,
		Severity:   types.SeverityNone,
		References: recordReferences(cveID),
		Source:     types.SourceCVEOrg,
		FetchedAt:  time.Now().UTC(),
	}
}

func recordReferences(cveID string) []string {
	return []string{
		recordURLFormat + cveID,
		nvdURLFormat + cveID,
	}
}
