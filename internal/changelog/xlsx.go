package changelog

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet is one log rendered into a workbook.
type Sheet struct {
	Table Table
	Rows  []Row
}

// ExportXLSX writes each sheet into a new workbook at path. The first sheet
// replaces the default one; sheets are named after their tables.
func ExportXLSX(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("export %s: no sheets", path)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		name := sh.Table.Name
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}

		if err := writeSheet(f, name, sh); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, sh Sheet) error {
	header := make([]interface{}, len(sh.Table.Columns))
	for i, c := range sh.Table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", name, err)
	}

	for i, r := range sh.Rows {
		cells := make([]interface{}, len(sh.Table.Columns))
		for j, v := range sh.Table.values(r) {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+1, name, err)
		}
	}

	return f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
