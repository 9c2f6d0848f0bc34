package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"leadcaller/models"
)

const leadsSheet = "Leads"

// XLSXWriter exports the dataset as a spreadsheet, one row per lead.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates the output directory for path.
func NewXLSXWriter(path string) (*XLSXWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrap(err, "xlsx: create output dir")
	}
	return &XLSXWriter{path: path}, nil
}

// Write rebuilds the workbook from scratch with the present columns.
func (x *XLSXWriter) Write(_ context.Context, ds *models.Dataset) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(leadsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	cols := ds.PresentColumns()
	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c)
	}
	for _, rec := range ds.Records() {
		row := sheet.AddRow()
		for _, c := range cols {
			row.AddCell().SetString(rec[c])
		}
	}

	if err := f.Save(x.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %q", x.path)
	}
	return nil
}

func (x *XLSXWriter) Close() error { return nil }
