// Package filing owns the amendment lifecycle of filings: at most one final
// filing per (entity, period description, start year, end year).
package filing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies a reporting period of one entity.
type Key struct {
	EntityID          int64
	PeriodDescription string
	StartYear         int
	EndYear           int
}

func (k Key) String() string {
	return fmt.Sprintf("entity=%d period=%q years=%d-%d", k.EntityID, k.PeriodDescription, k.StartYear, k.EndYear)
}

// Identity is the upstream identity of one submission.
type Identity struct {
	ReportID        int64
	ReportVersionID int64
}

// Filing is one submission as it is written to storage.
type Filing struct {
	Key      Key
	Identity Identity
	Final    bool
	Amended  bool

	FilingPeriodID *int64
	CampaignID     *int64
	FiledDate      *time.Time
	DateClosed     *time.Time
	ReportFileName string

	OpeningBalance   *decimal.Decimal
	ClosingBalance   *decimal.Decimal
	TotalLoans       *decimal.Decimal
	TotalInkind      *decimal.Decimal
	TotalUnpaidDebts *decimal.Decimal
}

// Existing is the stored state relevant to a lifecycle decision.
type Existing struct {
	ID       int64
	Identity Identity
	Final    bool
}

// NewKey builds the lifecycle key from the reporting period bounds.
func NewKey(entityID int64, description string, start, end time.Time) Key {
	return Key{
		EntityID:          entityID,
		PeriodDescription: description,
		StartYear:         start.Year(),
		EndYear:           end.Year(),
	}
}
