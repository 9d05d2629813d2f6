package reshape

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fuelsync/internal/schema"
)

// DefaultSheet is the worksheet name of the analysis spreadsheet.
const DefaultSheet = "Sheet1"

// WriteXLSX writes rows under the wide header to path. The workbook is
// written to a temporary file in the same directory and renamed over path,
// so readers never observe a partial file.
func WriteXLSX(rows []*Row, path, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	header := schema.WideHeader()
	for col, name := range header {
		if err := setCell(f, sheet, col+1, 1, name); err != nil {
			return err
		}
	}

	nKeys := len(schema.KeyColumns)
	for i, row := range rows {
		r := i + 2
		for col, v := range row.Key {
			if err := setCell(f, sheet, col+1, r, v); err != nil {
				return err
			}
		}
		for m, ok := range row.Set {
			if !ok {
				continue
			}
			if err := setCell(f, sheet, nKeys+m+1, r, row.Values[m]); err != nil {
				return err
			}
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fuelsync-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	// CreateTemp uses 0600
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case float64:
		err = f.SetCellFloat(sheet, cell, v, -1, 64)
	default:
		err = f.SetCellValue(sheet, cell, v)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}

// ReadXLSX returns the raw rows of sheet in the workbook at path.
func ReadXLSX(path, sheet string) ([][]string, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.GetRows(sheet, excelize.Options{RawCellValue: true})
}
