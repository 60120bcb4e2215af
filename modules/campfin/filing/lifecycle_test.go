package filing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var q1 = Key{EntityID: 100, PeriodDescription: "Q1 2023", StartYear: 2023, EndYear: 2023}

func TestDecide(t *testing.T) {
	orig := Identity{ReportID: 1, ReportVersionID: 1}
	amend := Identity{ReportID: 2, ReportVersionID: 1}

	cases := []struct {
		name     string
		existing []Existing
		in       Filing
		want     Decision
	}{
		{
			name: "none final",
			in:   Filing{Key: q1, Identity: orig, Final: true},
			want: Decision{Transition: Create},
		},
		{
			name: "none pending",
			in:   Filing{Key: q1, Identity: orig},
			want: Decision{Transition: CreatePending},
		},
		{
			name:     "same final submission",
			existing: []Existing{{ID: 7, Identity: orig, Final: true}},
			in:       Filing{Key: q1, Identity: orig, Final: true},
			want:     Decision{Transition: Link, Target: 7, TargetFinal: true},
		},
		{
			name:     "amendment supersedes final",
			existing: []Existing{{ID: 7, Identity: orig, Final: true}},
			in:       Filing{Key: q1, Identity: amend, Final: true},
			want:     Decision{Transition: Supersede, Delete: []int64{7}},
		},
		{
			name:     "final promotes pending",
			existing: []Existing{{ID: 3, Identity: orig}, {ID: 4, Identity: Identity{ReportID: 9}}},
			in:       Filing{Key: q1, Identity: amend, Final: true},
			want:     Decision{Transition: Promote, Target: 4},
		},
		{
			name: "final version supersedes pending versions of its report",
			existing: []Existing{
				{ID: 7, Identity: orig, Final: true},
				{ID: 8, Identity: Identity{ReportID: 1, ReportVersionID: 2}},
				{ID: 9, Identity: Identity{ReportID: 5, ReportVersionID: 1}},
			},
			in:   Filing{Key: q1, Identity: Identity{ReportID: 1, ReportVersionID: 3}, Final: true},
			want: Decision{Transition: Supersede, Delete: []int64{7, 8}},
		},
		{
			name: "final version promotes latest pending and drops older ones",
			existing: []Existing{
				{ID: 3, Identity: Identity{ReportID: 1, ReportVersionID: 1}},
				{ID: 4, Identity: Identity{ReportID: 1, ReportVersionID: 2}},
			},
			in:   Filing{Key: q1, Identity: Identity{ReportID: 1, ReportVersionID: 3}, Final: true},
			want: Decision{Transition: Promote, Target: 4, Delete: []int64{3}},
		},
		{
			name:     "export adopts placeholder final",
			existing: []Existing{{ID: 7, Final: true}},
			in:       Filing{Key: q1, Identity: amend, Final: true},
			want:     Decision{Transition: Link, Target: 7, TargetFinal: true},
		},
		{
			name:     "pending next to final",
			existing: []Existing{{ID: 7, Identity: orig, Final: true}},
			in:       Filing{Key: q1, Identity: amend},
			want:     Decision{Transition: CreatePending},
		},
		{
			name:     "pending repeated",
			existing: []Existing{{ID: 7, Identity: orig, Final: true}, {ID: 8, Identity: amend}},
			in:       Filing{Key: q1, Identity: amend},
			want:     Decision{Transition: Link, Target: 8},
		},
		{
			name:     "stored pending turns final over older final",
			existing: []Existing{{ID: 7, Identity: orig, Final: true}, {ID: 8, Identity: amend}},
			in:       Filing{Key: q1, Identity: amend, Final: true},
			want:     Decision{Transition: Promote, Target: 8, Delete: []int64{7}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Decide(tc.existing, tc.in))
		})
	}
}

func TestStateOf(t *testing.T) {
	require.Equal(t, StateNone, StateOf(nil))
	require.Equal(t, StateAmendedPending, StateOf([]Existing{{ID: 1}}))
	require.Equal(t, StateFinal, StateOf([]Existing{{ID: 1}, {ID: 2, Final: true}}))
}

func TestCheckBatch(t *testing.T) {
	q2 := q1
	q2.PeriodDescription = "Q2 2023"

	batch := []Filing{
		{Key: q1, Identity: Identity{ReportID: 5}, Final: true},
		{Key: q1, Identity: Identity{ReportID: 5}, Final: true},
		{Key: q1, Identity: Identity{ReportID: 3}, Final: true},
		{Key: q2, Identity: Identity{ReportID: 8}, Final: true},
		{Key: q2, Identity: Identity{ReportID: 9}},
	}

	conflicts := CheckBatch(batch)
	require.Len(t, conflicts, 1)
	require.Equal(t, q1, conflicts[0].Key)
	require.Equal(t, []Identity{{ReportID: 3}, {ReportID: 5}}, conflicts[0].Identities)
	require.Contains(t, conflicts[0].Error(), "Q1 2023")
}
