package extract

import (
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// unzipSingle extracts the only data member of a zip archive into workDir.
func unzipSingle(path, workDir string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", malformed(path, 0, "open zip: %v", err)
	}
	defer func() { _ = zr.Close() }()

	var members []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || isArchiveNoise(f.Name) {
			continue
		}
		members = append(members, f)
	}
	if len(members) != 1 {
		return "", malformed(path, 0, "expected exactly one member in archive, found %d", len(members))
	}

	rc, err := members[0].Open()
	if err != nil {
		return "", malformed(path, 0, "open zip member %s: %v", members[0].Name, err)
	}
	defer func() { _ = rc.Close() }()

	return writeTemp(rc, workDir, filepath.Base(members[0].Name))
}

func gunzip(path, workDir string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", malformed(path, 0, "open gzip: %v", err)
	}
	defer func() { _ = gz.Close() }()

	name := gz.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return writeTemp(gz, workDir, filepath.Base(name))
}

func writeTemp(r io.Reader, workDir, name string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "mkdir %s", workDir)
	}
	out, err := os.CreateTemp(workDir, "extract-*-"+name)
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", errors.Wrapf(err, "decompress %s", name)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func isArchiveNoise(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(base, ".")
}
