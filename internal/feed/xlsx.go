package feed

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/bluewater-supply/partsync/internal/model"
)

const feedSheetName = "Price Feed"

// WriteXLSX writes the snapshot as an XLSX workbook with one sheet,
// mirroring the CSV layout. Prices are numeric cells so spreadsheet
// consumers can aggregate them directly.
func WriteXLSX(path string, snap *model.Snapshot, opts Options) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(feedSheetName)
	if err != nil {
		return eris.Wrap(err, "feed: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range feedColumns {
		header.AddCell().SetString(col)
	}

	for i := range snap.Entries {
		e := &snap.Entries[i]
		row := sheet.AddRow()
		row.AddCell().SetString(e.SKU)
		row.AddCell().SetString(e.PartNumber)
		row.AddCell().SetString(clip(e.Description, opts.limit()))
		row.AddCell().SetString(e.Category)
		if e.UnitPrice != nil {
			row.AddCell().SetFloatWithFormat(*e.UnitPrice, "0.00")
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(timeCell(e.LastUpdated))
		row.AddCell().SetString(e.SourceCatalog)
		row.AddCell().SetString(e.Vendor)
		row.AddCell().SetString(string(e.Status))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "feed: save %s", path)
	}
	return nil
}
