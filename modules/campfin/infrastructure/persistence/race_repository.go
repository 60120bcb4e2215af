package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/nmcampfin/campfin-etl/modules/campfin/races"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const (
	raceCampaignsQuery = `
SELECT c.id, c.election_season_id, c.office_id, c.district_id, c.division_id, c.county_id, COALESCE(o.office_type, '')
FROM campaigns c LEFT JOIN offices o ON o.id = c.office_id
ORDER BY c.id`

	deleteRacesQuery = `DELETE FROM races`

	insertRaceQuery = `
INSERT INTO races (election_season_id, office_id, district_id, division_id, county_id, office_type)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
)

type RaceRepository struct{}

func NewRaceRepository() races.Store {
	return &RaceRepository{}
}

func (r *RaceRepository) Campaigns(ctx context.Context) ([]races.Campaign, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, raceCampaignsQuery)
	if err != nil {
		return nil, gerrors.Wrap(err, "load campaigns")
	}
	defer rows.Close()

	var out []races.Campaign
	for rows.Next() {
		var c races.Campaign
		if err := rows.Scan(&c.ID, &c.SeasonID, &c.OfficeID, &c.DistrictID, &c.DivisionID, &c.CountyID, &c.OfficeType); err != nil {
			return nil, gerrors.Wrap(err, "scan campaign")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Replace rewrites races and their campaign links; race_campaigns cascade
// from races.
func (r *RaceRepository) Replace(ctx context.Context, rs []races.Race) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, deleteRacesQuery); err != nil {
		return gerrors.Wrap(err, "delete races")
	}

	var links [][]any
	for _, race := range rs {
		k := race.Key
		var id int64
		err := tx.QueryRow(ctx, insertRaceQuery,
			k.SeasonID, nullID(k.OfficeID), nullID(k.DistrictID), nullID(k.DivisionID), nullID(k.CountyID),
			nullString(k.OfficeType),
		).Scan(&id)
		if err != nil {
			return gerrors.Wrap(err, "insert race")
		}
		for _, campaignID := range race.Campaigns {
			links = append(links, []any{id, campaignID})
		}
	}
	if len(links) == 0 {
		return nil
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"race_campaigns"}, []string{"race_id", "campaign_id"}, pgx.CopyFromRows(links)); err != nil {
		return gerrors.Wrap(err, "copy race campaigns")
	}
	return nil
}
