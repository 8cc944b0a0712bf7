// Package csv exports batch results as CSV for spreadsheets and stock-photo
// upload forms.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/phototag"
)

var header = []string{"filename", "title", "description", "keywords", "error"}

// Write writes one row per image in r, preceded by a header row.
// Keywords are joined with ", " into a single column.
func Write(w io.Writer, r phototag.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for i, img := range r.Images {
		row := []string{
			img.Filename,
			img.Title,
			img.Description,
			strings.Join(img.Keywords, ", "),
			img.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}
