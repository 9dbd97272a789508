package exploitdb

// searchResponse is the DataTables envelope the Exploit-DB search endpoint
// returns for XMLHttpRequest queries.
type searchResponse struct {
	RecordsTotal    int          `json:"recordsTotal"`
	RecordsFiltered int          `json:"recordsFiltered"`
	Data            []exploitRow `json:"data"`
}

type exploitRow struct {
	ID            int    `json:"id"`
	Description   string `json:"description"`
	Type          string `json:"type"`
	Platform      string `json:"platform"`
	DatePublished string `json:"date_published"`
	Verified      int    `json:"verified"`
	Codes         string `json:"codes"`
}
