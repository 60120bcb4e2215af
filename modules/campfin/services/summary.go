package services

import (
	"errors"
	"fmt"

	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDryRun   Status = "dry_run"
	StatusSkipped  Status = "skipped"
	StatusConflict Status = "conflict"
	StatusFailed   Status = "failed"
)

// maxReasons caps the reasons kept per summary; the counters stay exact.
const maxReasons = 200

// Summary is the outcome of importing one kind, printed as one JSON line.
type Summary struct {
	Kind           string   `json:"kind"`
	Status         Status   `json:"status"`
	RunID          string   `json:"run_id,omitempty"`
	Found          int      `json:"found"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Unchanged      int      `json:"unchanged"`
	Linked         int      `json:"linked"`
	Deleted        int      `json:"deleted,omitempty"`
	Skipped        int      `json:"skipped"`
	SkippedReasons []string `json:"skipped_reasons"`
	Warnings       []string `json:"warnings,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func newSummary(kind, runID string) *Summary {
	return &Summary{Kind: kind, Status: StatusOK, RunID: runID, SkippedReasons: []string{}}
}

func (s *Summary) skip(reason string) {
	s.Skipped++
	if len(s.SkippedReasons) < maxReasons {
		s.SkippedReasons = append(s.SkippedReasons, reason)
	}
}

func (s *Summary) warn(msg string) {
	if len(s.Warnings) < maxReasons {
		s.Warnings = append(s.Warnings, msg)
	}
}

// skipRow records a row-level mapping failure.
func (s *Summary) skipRow(err error) {
	var fme *mapping.FieldMappingError
	if errors.As(err, &fme) {
		s.skip(fme.Error())
		return
	}
	s.skip(err.Error())
}

func (s *Summary) gap(g *filing.ReferentialGapError) {
	s.warn(g.Error())
}

func (s *Summary) fail(err error) {
	s.Status = StatusFailed
	s.Error = err.Error()
}

func (s *Summary) String() string {
	return fmt.Sprintf("%s: %s created=%d updated=%d unchanged=%d linked=%d skipped=%d",
		s.Kind, s.Status, s.Created, s.Updated, s.Unchanged, s.Linked, s.Skipped)
}
