package nvd

type entry struct {
	ResultsPerPage  int             `json:"resultsPerPage"`
	StartIndex      int             `json:"startIndex"`
	TotalResults    int             `json:"totalResults"`
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

type vulnerability struct {
	Cve cveItem `json:"cve"`
}

type cveItem struct {
	ID           string        `json:"id"`
	Published    string        `json:"published"`
	LastModified string        `json:"lastModified"`
	Descriptions []description `json:"descriptions"`
	Metrics      metrics       `json:"metrics"`
	References   []reference   `json:"references"`
}

type description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type metrics struct {
	CvssMetricV31 []cvssMetric `json:"cvssMetricV31"`
	CvssMetricV30 []cvssMetric `json:"cvssMetricV30"`
	CvssMetricV2  []cvssMetric `json:"cvssMetricV2"`
}

type cvssMetric struct {
	CvssData cvssData `json:"cvssData"`
}

type cvssData struct {
	BaseScore float64 `json:"baseScore"`
}

type reference struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

// baseScore prefers the most recent CVSS revision reported for the entry.
func (m metrics) baseScore() *float64 {
	for _, list := range [][]cvssMetric{m.CvssMetricV31, m.CvssMetricV30, m.CvssMetricV2} {
		if len(list) > 0 {
			score := list[0].CvssData.BaseScore
			return &score
		}
	}
	return nil
}
