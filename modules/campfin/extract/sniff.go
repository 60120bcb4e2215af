package extract

import (
	"archive/zip"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

type container string

const (
	containerNone container = ""
	containerZip  container = "zip"
	containerGzip container = "gzip"
	containerXLSX container = "xlsx"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// sniff classifies path by extension. Files whose extension says nothing,
// such as downloads saved as "export" or "report.dat", are classified by
// content.
func sniff(path string) (container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return containerZip, nil
	case ".gz", ".gzip":
		return containerGzip, nil
	case ".xlsx", ".xlsm":
		return containerXLSX, nil
	case ".csv", ".txt", ".tsv":
		return containerNone, nil
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return containerNone, errors.Wrapf(err, "detect type of %s", path)
	}
	switch {
	case m.Is(xlsxMIME):
		return containerXLSX, nil
	case m.Is("application/zip"):
		// mimetype only inspects the leading members of a zip.
		if hasMember(path, "xl/workbook.xml") {
			return containerXLSX, nil
		}
		return containerZip, nil
	case m.Is("application/gzip"):
		return containerGzip, nil
	}
	return containerNone, nil
}

func hasMember(path, name string) bool {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer func() { _ = zr.Close() }()
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}
