// Package export writes the final ranked result set as JSON.
package export

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/types"
)

type Writer struct {
	appFs afero.Fs
}

func NewWriter(appFs afero.Fs) Writer {
	return Writer{appFs: appFs}
}

// Write saves records to path, creating parent directories as needed. Absent
// fields are omitted from the output rather than written as empty strings.
func (w Writer) Write(path string, records []types.MergedRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := w.appFs.MkdirAll(dir, 0o755); err != nil {
			return xerrors.Errorf("failed to mkdir: %w", err)
		}
	}

	f, err := w.appFs.Create(path)
	if err != nil {
		return xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	if records == nil {
		records = []types.MergedRecord{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err = f.Write(b); err != nil {
		return xerrors.Errorf("failed to save a file: %w", err)
	}
	return nil
}
