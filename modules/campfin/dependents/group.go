package dependents

import (
	"time"

	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

// GroupKey identifies the filing an export row belongs to. Periods are
// compared by year, the same way filing keys are.
type GroupKey struct {
	OwnerUserID int64
	Description string
	StartYear   int
	EndYear     int
}

// KeyOf returns the group key of one mapped row.
func KeyOf(rec mapping.Record) GroupKey {
	owner, _ := rec.Int("owner_user_id")
	start, _ := rec.Time("period_start")
	end, _ := rec.Time("period_end")
	return GroupKey{
		OwnerUserID: owner,
		Description: rec.String("period_description"),
		StartYear:   start.Year(),
		EndYear:     end.Year(),
	}
}

// Group holds the rows of one filing. Start and End are the period bounds of
// the first row seen.
type Group struct {
	Key           GroupKey
	Start         time.Time
	End           time.Time
	CommitteeName string
	Records       []mapping.Record
}

// Filter restricts a load to one year and optionally some quarters of it,
// both judged on the period start.
type Filter struct {
	Year     int
	Quarters []int
}

func (f Filter) Match(start time.Time) bool {
	if f.Year != 0 && start.Year() != f.Year {
		return false
	}
	if len(f.Quarters) == 0 {
		return true
	}
	q := Quarter(start)
	for _, want := range f.Quarters {
		if want == q {
			return true
		}
	}
	return false
}

// Quarter returns 1..4 for the calendar quarter of t.
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// GroupRecords buckets mapped rows by filing in first-seen order. Rows
// without a complete period are dropped by the mapper before this point.
func GroupRecords(records []mapping.Record, f Filter) []Group {
	index := make(map[GroupKey]int)
	var out []Group
	for _, rec := range records {
		start, _ := rec.Time("period_start")
		if !f.Match(start) {
			continue
		}
		k := KeyOf(rec)
		i, ok := index[k]
		if !ok {
			end, _ := rec.Time("period_end")
			i = len(out)
			index[k] = i
			out = append(out, Group{Key: k, Start: start, End: end, CommitteeName: rec.String("committee_name")})
		}
		out[i].Records = append(out[i].Records, rec)
	}
	return out
}
