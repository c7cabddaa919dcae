package register

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"sponsorcheck/internal"
	"sponsorcheck/internal/util"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Column layout of the published register:
// Organisation Name, Town/City, County, Type & Rating, Route.
const (
	colName = iota
	colTown
	colCounty
	colRating
	colRoute
)

var zipMagic = []byte("PK\x03\x04")

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", eris.Errorf("register: unknown format %q", s)
}

// DetectFormat picks csv or xlsx from the payload's URL extension, content
// type and leading bytes, in that order.
func DetectFormat(p Payload) Format {
	if u, err := url.Parse(p.URL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".xlsx":
			return FormatXLSX
		case ".csv":
			return FormatCSV
		}
	}
	ct := strings.ToLower(p.ContentType)
	if strings.Contains(ct, "spreadsheetml") {
		return FormatXLSX
	}
	if strings.Contains(ct, "csv") {
		return FormatCSV
	}
	if bytes.HasPrefix(p.Body, zipMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// Parse reads register rows, skipping the header row. Rows whose name
// normalizes to an empty key are dropped and duplicate keys keep the first
// record.
func Parse(r io.Reader, format Format) ([]internal.SponsorRecord, error) {
	var rows [][]string
	var err error
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(r)
	case FormatCSV, FormatAuto, "":
		rows, err = readCSV(r)
	default:
		return nil, eris.Errorf("register: unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func ParsePayload(p Payload, format Format) ([]internal.SponsorRecord, error) {
	if format == FormatAuto || format == "" {
		format = DetectFormat(p)
	}
	return Parse(bytes.NewReader(p.Body), format)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "register: read csv")
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "register: open xlsx")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, eris.New("register: xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eris.Wrapf(err, "register: read sheet %s", sheets[0])
	}
	return rows, nil
}

func toRecords(rows [][]string) []internal.SponsorRecord {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]internal.SponsorRecord, 0, len(rows))
	for _, row := range rows[1:] {
		name := strings.TrimSpace(cell(row, colName))
		if name == "" {
			continue
		}
		key := util.NormalizeCompanyName(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, internal.SponsorRecord{
			Key:    key,
			Name:   name,
			Town:   strings.TrimSpace(cell(row, colTown)),
			County: strings.TrimSpace(cell(row, colCounty)),
			Route:  strings.TrimSpace(cell(row, colRoute)),
		})
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
