// Package importer reads postal code seed files (CSV or XLSX) into records.
package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postal-cli/internal/model"
)

// Options configures how a seed file is read.
type Options struct {
	Delimiter rune   // CSV only; default ','
	SheetName string // XLSX only; default first sheet
}

// columns holds the header positions of the fields we read; -1 = absent.
type columns struct {
	code, concelho, distrito int
}

// ReadFile reads every data row of the seed file at path. Files ending in
// .xlsx are read as spreadsheets, anything else as delimited text. Rows are
// returned in file order with whitespace trimmed; postal code format is not
// checked here.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.PostalRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rowCh, errCh := streamXLSX(ctx, path, opts.SheetName)
		return collect(rowCh, errCh)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := streamCSV(ctx, f, opts.Delimiter)
	return collect(rowCh, errCh)
}

// collect drains the row stream. The first row is the header.
func collect(rowCh <-chan []string, errCh <-chan error) ([]model.PostalRecord, error) {
	var (
		cols   columns
		recs   []model.PostalRecord
		header = true
		hdrErr error
	)

	for row := range rowCh {
		if hdrErr != nil {
			continue // keep draining so the producer can exit
		}
		if header {
			header = false
			cols, hdrErr = mapHeader(row)
			continue
		}
		code := cell(row, cols.code)
		if code == "" {
			continue
		}
		recs = append(recs, model.PostalRecord{
			PostalCode: code,
			Concelho:   cell(row, cols.concelho),
			Distrito:   cell(row, cols.distrito),
		})
	}

	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	if hdrErr != nil {
		return nil, hdrErr
	}
	if header {
		return nil, eris.New("importer: file has no header row")
	}
	return recs, nil
}

func mapHeader(row []string) (columns, error) {
	cols := columns{code: -1, concelho: -1, distrito: -1}
	for i, h := range row {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "cp7", "postal_code":
			if cols.code < 0 {
				cols.code = i
			}
		case "concelho":
			cols.concelho = i
		case "distrito":
			cols.distrito = i
		}
	}
	if cols.code < 0 {
		return cols, eris.New("importer: header has no cp7 or postal_code column")
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
