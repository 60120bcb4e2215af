package dependents

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

func contribution(typ, amount string, extra map[string]any) mapping.Record {
	values := map[string]any{
		"owner_user_id":      int64(4410),
		"period_description": "First Primary Report",
		"period_start":       time.Date(2022, 4, 5, 0, 0, 0, 0, time.UTC),
		"period_end":         time.Date(2022, 5, 2, 0, 0, 0, 0, time.UTC),
		"transaction_type":   typ,
		"amount":             decimal.RequireFromString(amount),
		"contributor_code":   "Individual",
		"first_name":         "Ann",
		"last_name":          "Lee",
		"company_name":       "",
	}
	for k, v := range extra {
		values[k] = v
	}
	return mapping.Record{Kind: mapping.KindContribution, Values: values}
}

func TestFromContribution_Dispatch(t *testing.T) {
	cases := []struct {
		typ      string
		kind     Kind
		wantType string
	}{
		{"Monetary Contribution", KindTransaction, TypeMonetaryContribution},
		{"Monetary contribution", KindTransaction, TypeMonetaryContribution},
		{"in-kind contribution", KindTransaction, TypeInKindContribution},
		{"In-Kind Contribution", KindTransaction, TypeInKindContribution},
		{"Return Contribution", KindTransaction, TypeReturnContribution},
		{"Anonymous Contribution", KindTransaction, TypeAnonymousContribution},
		{"Loans Received", KindLoan, ""},
		{"loans received", KindLoan, ""},
		{"Special Event", KindSpecialEvent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			d, err := FromContribution(contribution(tc.typ, "100", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, d.Kind)
			assert.Equal(t, tc.wantType, d.Type)
		})
	}
}

func TestFromContribution_UnknownType(t *testing.T) {
	_, err := FromContribution(contribution("Pledge", "1", nil))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestFromContribution_BlankEmployerIsEmptyCompany(t *testing.T) {
	d, err := FromContribution(contribution("Monetary Contribution", "250", nil))
	require.NoError(t, err)
	require.Equal(t, "", d.CompanyName)
	require.Equal(t, "Ann Lee", d.Party.FullName)
}

func TestFromContribution_SpecialEventSponsors(t *testing.T) {
	d, err := FromContribution(contribution("Special Event", "40", nil))
	require.NoError(t, err)
	require.Equal(t, "Not specified", d.Sponsors)

	d, err = FromContribution(contribution("Special Event", "40", map[string]any{"company_name": "Rotary"}))
	require.NoError(t, err)
	require.Equal(t, "Rotary", d.Sponsors)
}

func TestFromExpenditure_CompanyPayeeAndDescription(t *testing.T) {
	rec := mapping.Record{Values: map[string]any{
		"amount":           decimal.RequireFromString("75.50"),
		"company_name":     "Acme   Printing",
		"expenditure_type": "Advertising and printing costs for the general election mailers sent statewide",
	}}
	d := FromExpenditure(rec)
	require.Equal(t, TypeMonetaryExpenditure, d.Type)
	require.Equal(t, "Acme Printing", d.CompanyName)
	require.Equal(t, "Acme Printing", d.Party.CompanyName)
	require.Len(t, []rune(d.Description), 74)
}

func TestAssignSourceKeys_StableAndDistinctForRepeats(t *testing.T) {
	build := func() []Dependent {
		var ds []Dependent
		for _, amt := range []string{"10", "10", "20"} {
			d, err := FromContribution(contribution("Monetary Contribution", amt, nil))
			require.NoError(t, err)
			ds = append(ds, d)
		}
		AssignSourceKeys(ds)
		return ds
	}
	first, second := build(), build()

	for i := range first {
		require.Equal(t, first[i].SourceKey, second[i].SourceKey)
	}
	require.NotEqual(t, first[0].SourceKey, first[1].SourceKey)
	require.NotEqual(t, first[1].SourceKey, first[2].SourceKey)
}

func TestGroupRecords_ByFilingWithFilter(t *testing.T) {
	q2 := contribution("Monetary Contribution", "1", nil)
	q2b := contribution("Monetary Contribution", "2", nil)
	q4 := contribution("Monetary Contribution", "3", map[string]any{
		"period_description": "Second General Report",
		"period_start":       time.Date(2022, 10, 4, 0, 0, 0, 0, time.UTC),
		"period_end":         time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC),
	})
	records := []mapping.Record{q2, q4, q2b}

	all := GroupRecords(records, Filter{})
	require.Len(t, all, 2)
	require.Len(t, all[0].Records, 2)
	require.Equal(t, "First Primary Report", all[0].Key.Description)

	only := GroupRecords(records, Filter{Year: 2022, Quarters: []int{4}})
	require.Len(t, only, 1)
	require.Equal(t, "Second General Report", only[0].Key.Description)

	require.Empty(t, GroupRecords(records, Filter{Year: 2021}))
}

func TestGroupRecords_MergesPeriodsOfOneFilingKey(t *testing.T) {
	first := contribution("Monetary Contribution", "1", nil)
	shifted := contribution("Monetary Contribution", "2", map[string]any{
		"period_start": time.Date(2022, 4, 6, 0, 0, 0, 0, time.UTC),
		"period_end":   time.Date(2022, 5, 9, 0, 0, 0, 0, time.UTC),
	})

	groups := GroupRecords([]mapping.Record{first, shifted}, Filter{})
	require.Len(t, groups, 1, "rows sharing description and years attach to one filing")
	require.Len(t, groups[0].Records, 2)
	start, _ := first.Time("period_start")
	require.Equal(t, start, groups[0].Start)
	require.Equal(t, KeyOf(shifted), groups[0].Key)
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass("con")
	require.NoError(t, err)
	require.Equal(t, ClassContributions, c)
	_, err = ParseClass("LOAN")
	require.Error(t, err)
}
