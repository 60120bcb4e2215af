package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const (
	pacByUserIDQuery = `
SELECT p.id, p.entity_id, e.user_id FROM pacs p JOIN entities e ON e.id = p.entity_id
WHERE e.user_id = $1`

	pacByNameQuery = `
SELECT p.id, p.entity_id, e.user_id FROM pacs p JOIN entities e ON e.id = p.entity_id
WHERE p.name = $1 ORDER BY p.id LIMIT 1`

	candidateEntityOfCommitteeQuery = `
SELECT ca.entity_id FROM campaigns c JOIN candidates ca ON ca.id = c.candidate_id
WHERE c.committee_id = $1 ORDER BY c.id DESC LIMIT 1`

	campaignForFilingQuery = `
SELECT c.id FROM campaigns c
JOIN election_seasons s ON s.id = c.election_season_id
LEFT JOIN offices o ON o.id = c.office_id
LEFT JOIN districts d ON d.id = c.district_id
LEFT JOIN candidates ca ON ca.id = c.candidate_id
LEFT JOIN pacs p ON p.id = c.committee_id
WHERE s.year = $2 AND (ca.entity_id = $1 OR p.entity_id = $1)
	AND ($3 = '' OR o.description = $3)
	AND ($4 = '' OR d.name = $4)
ORDER BY c.id DESC LIMIT 1`
)

// PACRef is a committee and the Entity behind it.
type PACRef struct {
	ID       int64
	EntityID int64
	UserID   *int64
}

type OwnerRepository struct{}

func NewOwnerRepository() *OwnerRepository {
	return &OwnerRepository{}
}

func (r *OwnerRepository) PACByUserID(ctx context.Context, userID int64) (PACRef, error) {
	return r.pac(ctx, pacByUserIDQuery, userID)
}

func (r *OwnerRepository) PACByName(ctx context.Context, name string) (PACRef, error) {
	return r.pac(ctx, pacByNameQuery, name)
}

// CandidateEntityOfCommittee returns the Entity of the candidate a committee
// last ran a campaign for.
func (r *OwnerRepository) CandidateEntityOfCommittee(ctx context.Context, pacID int64) (int64, error) {
	return queryID(ctx, "candidate of committee", candidateEntityOfCommitteeQuery, pacID)
}

// CampaignForFiling finds the campaign an owner ran in the election year,
// narrowed by office and district names when given.
func (r *OwnerRepository) CampaignForFiling(ctx context.Context, entityID int64, year, office, district string) (int64, error) {
	return queryID(ctx, "campaign", campaignForFilingQuery, entityID, year, office, district)
}

func (r *OwnerRepository) pac(ctx context.Context, query string, arg any) (PACRef, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return PACRef{}, err
	}
	var p PACRef
	if err := tx.QueryRow(ctx, query, arg).Scan(&p.ID, &p.EntityID, &p.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PACRef{}, ErrNotFound
		}
		return PACRef{}, gerrors.Wrap(err, "find committee")
	}
	return p, nil
}

// queryID runs a query returning one id; no row is ErrNotFound.
func queryID(ctx context.Context, what, query string, args ...any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, gerrors.Wrapf(err, "find %s", what)
	}
	return id, nil
}
