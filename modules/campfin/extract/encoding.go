package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

const EncodingUTF8 = "utf-8"

// lookupEncoding returns nil for UTF-8 sources.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
	return enc, nil
}

func decodeReader(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc == nil {
		return r
	}
	return enc.NewDecoder().Reader(r)
}
