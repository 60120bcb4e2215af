package extract

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

type Options struct {
	// Encoding of delimited sources. Spreadsheets are always read as unicode.
	Encoding string
	Format   Format
	// WorkDir receives decompressed members and converted spreadsheets.
	WorkDir   string
	Delimiter rune
}

// Row is one data row keyed by header column. A nil value is an empty cell.
type Row struct {
	Line   int
	Values map[string]*string
}

func (r Row) Get(column string) string {
	if v := r.Values[column]; v != nil {
		return *v
	}
	return ""
}

func (r Row) Lookup(column string) (string, bool) {
	v, ok := r.Values[column]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// NewRow builds a row from column/value pairs; empty values become null.
func NewRow(line int, kv map[string]string) Row {
	values := make(map[string]*string, len(kv))
	for k, v := range kv {
		if v == "" {
			values[k] = nil
			continue
		}
		s := v
		values[k] = &s
	}
	return Row{Line: line, Values: values}
}

// Source streams rows of a tabular extract in source order.
type Source struct {
	path    string
	header  []string
	reader  *csv.Reader
	utf8    bool
	closers []func() error
}

func Open(path string, opts Options) (*Source, error) {
	s := &Source{path: path}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}

	dataPath, err := s.unpack(path, opts.WorkDir)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	format := opts.Format
	if format == FormatAuto {
		if format, err = formatOf(dataPath); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if format == FormatXLSX {
		csvPath, err := convertSpreadsheet(dataPath, opts.WorkDir)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		dataPath = csvPath
		enc = nil
	}

	f, err := os.Open(dataPath)
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrapf(err, "open %s", dataPath)
	}
	s.closers = append(s.closers, f.Close)

	br := bufio.NewReader(decodeReader(f, enc))
	if enc == nil {
		br = stripUTF8BOM(br)
	}
	s.utf8 = enc == nil

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	s.reader = r

	if err := s.readHeader(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) Header() []string {
	out := make([]string, len(s.header))
	copy(out, s.header)
	return out
}

// Next returns the next row or io.EOF.
func (s *Source) Next() (Row, error) {
	for {
		rec, err := s.reader.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Row{}, malformed(s.path, pe.Line, "%v", pe.Err)
			}
			return Row{}, errors.Wrapf(err, "read %s", s.path)
		}
		line, _ := s.reader.FieldPos(0)
		if isBlankRecord(rec) {
			continue
		}
		if len(rec) != len(s.header) {
			return Row{}, malformed(s.path, line, "expected %d fields, got %d", len(s.header), len(rec))
		}

		values := make(map[string]*string, len(rec))
		for i, v := range rec {
			if s.utf8 && !utf8.ValidString(v) {
				return Row{}, malformed(s.path, line, "invalid utf-8 in column %s (encoding mismatch)", s.header[i])
			}
			if v == "" {
				values[s.header[i]] = nil
				continue
			}
			values[s.header[i]] = &rec[i]
		}
		return Row{Line: line, Values: values}, nil
	}
}

func (s *Source) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// ReadAll loads every row of the source at path.
func ReadAll(path string, opts Options) ([]string, []Row, error) {
	src, err := Open(path, opts)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = src.Close() }()

	var rows []Row
	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return src.Header(), rows, nil
}

func (s *Source) readHeader() error {
	h, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return malformed(s.path, 1, "missing header")
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return malformed(s.path, pe.Line, "%v", pe.Err)
		}
		return errors.Wrapf(err, "read header %s", s.path)
	}
	if isBlankRecord(h) {
		return malformed(s.path, 1, "missing header")
	}
	seen := make(map[string]struct{}, len(h))
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if s.utf8 && !utf8.ValidString(h[i]) {
			return malformed(s.path, 1, "invalid header encoding")
		}
		if h[i] == "" {
			continue
		}
		if _, dup := seen[h[i]]; dup {
			return malformed(s.path, 1, "duplicate header column: %s", h[i])
		}
		seen[h[i]] = struct{}{}
	}
	s.header = h
	return nil
}

func (s *Source) unpack(path, workDir string) (string, error) {
	kind, err := sniff(path)
	if err != nil {
		return "", err
	}
	var member string
	switch kind {
	case containerZip:
		member, err = unzipSingle(path, workDir)
	case containerGzip:
		member, err = gunzip(path, workDir)
	default:
		return path, nil
	}
	if err != nil {
		return "", err
	}
	s.closers = append(s.closers, func() error { return os.Remove(member) })
	return member, nil
}

func formatOf(path string) (Format, error) {
	kind, err := sniff(path)
	if err != nil {
		return FormatAuto, err
	}
	if kind == containerXLSX {
		return FormatXLSX, nil
	}
	return FormatCSV, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
