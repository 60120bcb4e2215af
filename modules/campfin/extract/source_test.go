package extract

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(tb testing.TB, dir, name string, content []byte) string {
	tb.Helper()
	p := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(p, content, 0o644))
	return p
}

func TestReadAll_CSVPreservesOrderAndNulls(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cands.csv", []byte("\xEF\xBB\xBFcandidateid, firstname ,lastname\n2,Ann,\n1,Bob,Smith\n"))

	header, rows, err := ReadAll(p, Options{WorkDir: dir})
	require.NoError(t, err)
	require.Equal(t, []string{"candidateid", "firstname", "lastname"}, header)
	require.Len(t, rows, 2)

	require.Equal(t, "2", rows[0].Get("candidateid"))
	require.Equal(t, 2, rows[0].Line)
	_, ok := rows[0].Lookup("lastname")
	require.False(t, ok)
	require.Nil(t, rows[0].Values["lastname"])
	require.Equal(t, "Smith", rows[1].Get("lastname"))
}

func TestOpen_MissingHeader(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "empty.csv", nil)

	_, err := Open(p, Options{WorkDir: dir})
	var mse *MalformedSourceError
	require.True(t, errors.As(err, &mse))
	require.Contains(t, mse.Reason, "missing header")
}

func TestOpen_DuplicateHeader(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "dup.csv", []byte("a,b,a\n1,2,3\n"))

	_, err := Open(p, Options{WorkDir: dir})
	var mse *MalformedSourceError
	require.ErrorAs(t, err, &mse)
}

func TestNext_FieldCountMismatch(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "short.csv", []byte("a,b,c\n1,2,3\n4,5\n"))

	_, _, err := ReadAll(p, Options{WorkDir: dir})
	var mse *MalformedSourceError
	require.ErrorAs(t, err, &mse)
	require.Equal(t, 3, mse.Line)
}

func TestNext_LegacyEncodingDecoded(t *testing.T) {
	dir := t.TempDir()
	// 0xE9 is "é" in Windows-1252
	p := writeFile(t, dir, "latin.csv", []byte("name\nJos\xE9\n"))

	_, rows, err := ReadAll(p, Options{WorkDir: dir, Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Equal(t, "José", rows[0].Get("name"))
}

func TestNext_InvalidUTF8IsEncodingMismatch(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "latin.csv", []byte("name\nJos\xE9\n"))

	_, _, err := ReadAll(p, Options{WorkDir: dir})
	var mse *MalformedSourceError
	require.ErrorAs(t, err, &mse)
	require.Contains(t, mse.Reason, "encoding mismatch")
}

func TestOpen_UnknownEncoding(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "x.csv", []byte("a\n1\n"))

	_, err := Open(p, Options{WorkDir: dir, Encoding: "klingon"})
	require.Error(t, err)
}

func TestOpen_GzipSource(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("OrgID,Amount\n100,250.00\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	p := writeFile(t, dir, "con.csv.gz", buf.Bytes())

	_, rows, err := ReadAll(p, Options{WorkDir: dir})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "250.00", rows[0].Get("Amount"))
}

func TestOpen_ZipSource(t *testing.T) {
	dir := t.TempDir()

	single := zipBytes(t, map[string]string{"data/con.csv": "OrgID\n100\n", "__MACOSX/._con.csv": "junk"})
	p := writeFile(t, dir, "single.zip", single)
	_, rows, err := ReadAll(p, Options{WorkDir: dir})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	multi := zipBytes(t, map[string]string{"a.csv": "x\n1\n", "b.csv": "y\n2\n"})
	p = writeFile(t, dir, "multi.zip", multi)
	_, err = Open(p, Options{WorkDir: dir})
	var mse *MalformedSourceError
	require.ErrorAs(t, err, &mse)
}

func TestOpen_SpreadsheetConvertedOnce(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "work")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"ReportID", "ReportName", "Amended"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"7001", "First Primary Report", "0"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"7002", "Second Primary Report"}))
	p := filepath.Join(dir, "filings.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	header, rows, err := ReadAll(p, Options{WorkDir: work})
	require.NoError(t, err)
	require.Equal(t, []string{"ReportID", "ReportName", "Amended"}, header)
	require.Len(t, rows, 2)
	require.Equal(t, "7001", rows[0].Get("ReportID"))
	require.Nil(t, rows[1].Values["Amended"])

	converted := filepath.Join(work, "filings.csv")
	info, err := os.Stat(converted)
	require.NoError(t, err)

	_, _, err = ReadAll(p, Options{WorkDir: work})
	require.NoError(t, err)
	again, err := os.Stat(converted)
	require.NoError(t, err)
	require.Equal(t, info.ModTime(), again.ModTime())
}

func zipBytes(tb testing.TB, members map[string]string) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(tb, err)
		_, err = w.Write([]byte(content))
		require.NoError(tb, err)
	}
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

func TestOpen_SniffsContainerWithoutExtension(t *testing.T) {
	dir := t.TempDir()

	p := writeFile(t, dir, "export", zipBytes(t, map[string]string{"con.csv": "OrgID\n100\n"}))
	_, rows, err := ReadAll(p, Options{WorkDir: dir})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "100", rows[0].Get("OrgID"))

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow(f.GetSheetName(0), "A1", &[]any{"CountyID", "Description"}))
	require.NoError(t, f.SetSheetRow(f.GetSheetName(0), "A2", &[]any{"1", "Bernalillo"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	p = writeFile(t, dir, "counties.dat", buf.Bytes())

	header, rows, err := ReadAll(p, Options{WorkDir: filepath.Join(dir, "work")})
	require.NoError(t, err)
	require.Equal(t, []string{"CountyID", "Description"}, header)
	require.Equal(t, "Bernalillo", rows[0].Get("Description"))

	p = writeFile(t, dir, "plain", []byte("OrgID\n7\n"))
	_, rows, err = ReadAll(p, Options{WorkDir: dir})
	require.NoError(t, err)
	require.Equal(t, "7", rows[0].Get("OrgID"))
}
