package mapping

import "fmt"

// FieldMappingError reports a required value that could not be cast.
// Key is set when the failing field is the table's external key.
type FieldMappingError struct {
	Kind   string
	Line   int
	Column string
	Target string
	Value  string
	Key    bool
	Reason string
}

func (e *FieldMappingError) Error() string {
	return fmt.Sprintf("%s line %d: %s (%s): %s: %q", e.Kind, e.Line, e.Column, e.Target, e.Reason, e.Value)
}
