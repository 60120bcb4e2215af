package mapping

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
)

func mustTable(tb testing.TB, kind string) *Table {
	tb.Helper()
	tbl, ok := DefaultRegistry().Table(kind)
	require.True(tb, ok, kind)
	return tbl
}

func TestMap_CandidateRow(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(2, map[string]string{
		"candidateid":     "101",
		"entityid":        "5001",
		"firstname":       " Jane ",
		"lastname":        "Doe",
		"middlename":      "",
		"dateadded":       "1/4/2018",
		"datelastupdated": "2018-01-05 10:00:00",
		"deceased":        "0",
	})

	rec, err := m.Map(row, mustTable(t, KindCandidate))
	require.NoError(t, err)
	require.Equal(t, "101", rec.Key)
	require.Equal(t, 2, rec.Line)
	require.Equal(t, "Jane", rec.String("first_name"))
	require.Nil(t, rec.Values["middle_name"])
	uid, ok := rec.Int("entity_user_id")
	require.True(t, ok)
	require.Equal(t, int64(5001), uid)
	added, ok := rec.Time("date_added")
	require.True(t, ok)
	require.Equal(t, time.Date(2018, time.January, 4, 0, 0, 0, 0, time.UTC), added)
	dead, ok := rec.Bool("deceased")
	require.True(t, ok)
	require.False(t, dead)
	require.Empty(t, rec.Warnings)
}

func TestMap_BadKeyIsKeyError(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(9, map[string]string{"candidateid": "abc", "entityid": "1"})

	_, err := m.Map(row, mustTable(t, KindCandidate))
	var fme *FieldMappingError
	require.ErrorAs(t, err, &fme)
	require.True(t, fme.Key)
	require.Equal(t, 9, fme.Line)
	require.Equal(t, "candidateid", fme.Column)
}

func TestMap_MissingRequiredField(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(3, map[string]string{"politicalactioncommitteeid": "7", "entityid": "70"})

	_, err := m.Map(row, mustTable(t, KindPAC))
	var fme *FieldMappingError
	require.ErrorAs(t, err, &fme)
	require.False(t, fme.Key)
	require.Equal(t, "name", fme.Target)
}

func TestMap_OptionalCastFailureBecomesNullWithWarning(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(4, map[string]string{
		"politicalactioncommitteeid": "7",
		"entityid":                   "70",
		"name":                       "Friends of Parks",
		"initialbalance":             "n/a",
		"dateadded":                  "someday",
	})

	rec, err := m.Map(row, mustTable(t, KindPAC))
	require.NoError(t, err)
	require.Nil(t, rec.Values["initial_balance"])
	require.Nil(t, rec.Values["date_added"])
	require.Len(t, rec.Warnings, 2)
}

func TestMap_ContributionAliasesAndDefaults(t *testing.T) {
	m := NewMapper(time.UTC)
	tbl := mustTable(t, KindContribution)

	base := map[string]string{
		"OrgID":             "4410",
		"Report Name":       "July Quarterly",
		"Start of Period":   "4/1/2022",
		"End of Period":     "6/30/2022",
		"Contribution Type": "Monetary Contribution",
		"First Name":        "Ann",
		"Last Name":         "Lee",
	}

	withAlias := clone(base)
	withAlias["Amount"] = "(25.00)"
	rec, err := m.Map(extract.NewRow(2, withAlias), tbl)
	require.NoError(t, err)
	amt, ok := rec.Money("amount")
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(-25).Equal(amt))

	// blank employer maps to an empty company name, not null
	v, present := rec.Values["company_name"]
	require.True(t, present)
	require.Equal(t, "", v)

	primary := clone(base)
	primary["Transaction Amount"] = "$1,000"
	primary["Amount"] = "5"
	rec, err = m.Map(extract.NewRow(3, primary), tbl)
	require.NoError(t, err)
	amt, _ = rec.Money("amount")
	require.True(t, decimal.NewFromInt(1000).Equal(amt))
}

func TestMap_FilingFinalIsOptional(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(2, map[string]string{
		"ReportID":        "7001",
		"Amended":         "1",
		"OrgID":           "4410",
		"ReportName":      "July Quarterly",
		"FilingStartDate": "2022-04-01",
		"FilingEndDate":   "2022-06-30",
	})

	rec, err := m.Map(row, mustTable(t, KindFiling))
	require.NoError(t, err)
	_, ok := rec.Bool("final")
	require.False(t, ok, "finality comes from the amendment count")
	n, _ := rec.Int("amendment_count")
	require.Equal(t, int64(1), n)
	uid, _ := rec.Int("owner_user_id")
	require.Equal(t, int64(4410), uid)
}

func TestMap_Deterministic(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(2, map[string]string{"countyid": "3", "description": "Denver"})
	tbl := mustTable(t, KindCounty)

	a, err := m.Map(row, tbl)
	require.NoError(t, err)
	b, err := m.Map(row, tbl)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestMap_ProjectedTableIgnoresOtherFields(t *testing.T) {
	m := NewMapper(time.UTC)
	row := extract.NewRow(4, map[string]string{
		"OrgID":              "4410",
		"Report Name":        "First Primary Report",
		"Start of Period":    "2022-04-05",
		"End of Period":      "2022-05-02",
		"Contribution Type":  "Monetary Contribution",
		"Transaction Amount": "n/a",
	})
	tbl := mustTable(t, KindContribution)

	_, err := m.Map(row, tbl)
	var fme *FieldMappingError
	require.ErrorAs(t, err, &fme)
	require.Equal(t, "amount", fme.Target)

	rec, err := m.Map(row, tbl.Project("owner_user_id", "period_description", "period_start", "period_end"))
	require.NoError(t, err)
	uid, _ := rec.Int("owner_user_id")
	require.Equal(t, int64(4410), uid)
	require.Equal(t, "First Primary Report", rec.String("period_description"))

	_, err = m.Map(extract.NewRow(5, map[string]string{"OrgID": "4410"}), tbl.Project("owner_user_id", "period_start"))
	require.Error(t, err)
}
