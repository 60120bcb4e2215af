package races

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func id(v int64) *int64 { return &v }

func TestGroup_SameSeatSameSeasonIsOneRace(t *testing.T) {
	campaigns := []Campaign{
		{ID: 3, SeasonID: id(1), OfficeID: id(10), DistrictID: id(100), OfficeType: "State"},
		{ID: 1, SeasonID: id(1), OfficeID: id(10), DistrictID: id(100), OfficeType: "State"},
		{ID: 2, SeasonID: id(1), OfficeID: id(10), DistrictID: id(101), OfficeType: "State"},
		{ID: 4, SeasonID: id(2), OfficeID: id(10), DistrictID: id(100), OfficeType: "State"},
		{ID: 5, OfficeID: id(10)},
		{ID: 6, SeasonID: id(1)},
	}

	got, skipped := Group(campaigns)
	require.Equal(t, []int64{5, 6}, skipped)
	require.Len(t, got, 3)
	require.Equal(t, []int64{1, 3}, got[0].Campaigns)
	require.Equal(t, int64(100), got[0].Key.DistrictID)
	require.Equal(t, []int64{2}, got[1].Campaigns)
	require.Equal(t, int64(2), got[2].Key.SeasonID)
}

func TestGroup_Deterministic(t *testing.T) {
	campaigns := []Campaign{
		{ID: 1, SeasonID: id(2), OfficeID: id(1)},
		{ID: 2, SeasonID: id(1), OfficeID: id(2)},
		{ID: 3, SeasonID: id(1), OfficeID: id(1), CountyID: id(7)},
	}
	first, _ := Group(campaigns)
	for i := 0; i < 20; i++ {
		again, _ := Group(campaigns)
		require.Equal(t, first, again)
	}
}
