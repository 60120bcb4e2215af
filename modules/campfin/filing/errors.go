package filing

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("filing not found")

// ReferentialGapError reports an optional parent that could not be found.
// The row is still written, without the link.
type ReferentialGapError struct {
	Kind   string
	Parent string
	Ref    string
}

func (e *ReferentialGapError) Error() string {
	return fmt.Sprintf("%s: %s not found for %s", e.Kind, e.Parent, e.Ref)
}

// SupersessionConflictError is raised when one batch carries more than one
// final filing for the same key. None of them is applied.
type SupersessionConflictError struct {
	Key        Key
	Identities []Identity
}

func (e *SupersessionConflictError) Error() string {
	ids := make([]string, 0, len(e.Identities))
	for _, id := range e.Identities {
		ids = append(ids, fmt.Sprintf("%d/%d", id.ReportID, id.ReportVersionID))
	}
	return fmt.Sprintf("conflicting final filings for %s: %s", e.Key, strings.Join(ids, ", "))
}
