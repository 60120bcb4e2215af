package extract

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// convertSpreadsheet writes the first sheet of an XLSX workbook to a CSV file in
// workDir and returns its path. A conversion newer than the workbook is reused.
func convertSpreadsheet(path, workDir string) (string, error) {
	out := filepath.Join(workDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".csv")
	if upToDate(out, path) {
		return out, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", malformed(path, 0, "open spreadsheet: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return "", malformed(path, 0, "spreadsheet has no sheets")
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return "", malformed(path, 0, "read sheet %s: %v", sheet, err)
	}
	defer func() { _ = rows.Close() }()

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "mkdir %s", workDir)
	}
	tmp, err := os.CreateTemp(workDir, "xlsx-*.csv")
	if err != nil {
		return "", errors.Wrap(err, "create csv")
	}
	w := csv.NewWriter(tmp)

	width := 0
	line := 0
	for rows.Next() {
		line++
		cols, err := rows.Columns()
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return "", malformed(path, line, "read row: %v", err)
		}
		if line == 1 {
			width = len(cols)
		}
		// trailing empty cells are not stored in the workbook
		for len(cols) < width {
			cols = append(cols, "")
		}
		if err := w.Write(cols); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return "", errors.Wrap(err, "write csv")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", errors.Wrap(err, "flush csv")
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "rename %s", out)
	}
	return out, nil
}

func upToDate(target, source string) bool {
	ti, err := os.Stat(target)
	if err != nil {
		return false
	}
	si, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !ti.ModTime().Before(si.ModTime())
}
