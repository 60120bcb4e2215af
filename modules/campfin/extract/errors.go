package extract

import "fmt"

// MalformedSourceError reports a source that cannot be read as a table.
// Nothing from the source may be committed once it is returned.
type MalformedSourceError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedSourceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed source %s: line %d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed source %s: %s", e.Path, e.Reason)
}

func malformed(path string, line int, format string, args ...any) error {
	return &MalformedSourceError{Path: path, Line: line, Reason: fmt.Sprintf(format, args...)}
}
