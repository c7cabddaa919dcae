package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"sponsorcheck/internal"
)

// ExportOutcomesToXLSX writes one row per scanned element.
func ExportOutcomesToXLSX(rows []internal.MatchRow, outputPath string) error {
	headers := []string{"host", "site", "text", "canonical_key", "is_sponsor"}
	return writeSheet("outcomes", headers, len(rows), outputPath, func(i int) []any {
		row := rows[i]
		return []any{row.Host, row.Site, row.Text, row.Key, row.Sponsor}
	})
}

// ExportSponsorsToXLSX writes the persisted register.
func ExportSponsorsToXLSX(records []internal.SponsorRecord, outputPath string) error {
	headers := []string{"canonical_key", "organisation_name", "town_city", "county", "route"}
	return writeSheet("sponsors", headers, len(records), outputPath, func(i int) []any {
		r := records[i]
		return []any{r.Key, r.Name, r.Town, r.County, r.Route}
	})
}

func writeSheet(name string, headers []string, n int, outputPath string, row func(i int) []any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return eris.Wrap(err, "report: rename sheet")
	}

	set := func(col, r int, value any) error {
		cell, err := excelize.CoordinatesToCellName(col, r)
		if err != nil {
			return err
		}
		return f.SetCellValue(name, cell, value)
	}

	for i, h := range headers {
		if err := set(i+1, 1, h); err != nil {
			return eris.Wrap(err, "report: write header")
		}
	}
	for i := 0; i < n; i++ {
		for col, v := range row(i) {
			if err := set(col+1, i+2, v); err != nil {
				return eris.Wrapf(err, "report: write row %d", i+2)
			}
		}
	}

	if n > 0 {
		last, _ := excelize.CoordinatesToCellName(len(headers), n+1)
		if err := f.AutoFilter(name, "A1:"+last, nil); err != nil {
			return eris.Wrap(err, "report: autofilter")
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return eris.Wrap(err, "report: create output dir")
	}
	return eris.Wrap(f.SaveAs(outputPath), "report: save")
}
