package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/nmcampfin/campfin-etl/modules/campfin/upsert"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const (
	insertPACQuery = `
INSERT INTO pacs (entity_id, name, committee_type, date_added)
VALUES ($1, $2, $3, CURRENT_DATE)
RETURNING id`

	updatePACTypeQuery = `
UPDATE pacs SET committee_type = $2 WHERE id = $1 AND committee_type IS DISTINCT FROM $2`

	candidateOfCommitteeQuery = `
SELECT c.candidate_id FROM campaigns c
WHERE c.committee_id = $1 AND c.candidate_id IS NOT NULL
ORDER BY c.id DESC LIMIT 1`

	candidateByContactQuery = `
SELECT id FROM candidates
WHERE lower(email) = lower($1) AND regexp_replace(COALESCE(business_phone, ''), '[^0-9]', '', 'g') = $2
ORDER BY id LIMIT 1`

	insertCandidateQuery = `
INSERT INTO candidates (entity_id, full_name, email, business_phone, date_added)
VALUES ($1, $2, $3, $4, CURRENT_DATE)
RETURNING id`

	findRegistryCampaignQuery = `
SELECT id, candidate_id FROM campaigns
WHERE election_season_id = $1 AND committee_id = $2
	AND office_id IS NOT DISTINCT FROM $3 AND district_id IS NOT DISTINCT FROM $4
	AND county_id IS NOT DISTINCT FROM $5 AND political_party_id IS NOT DISTINCT FROM $6
ORDER BY id LIMIT 1`

	setCampaignLinkQuery = `UPDATE campaigns SET sos_link = $2 WHERE id = $1 AND sos_link IS DISTINCT FROM $2`
	setPACLinkQuery      = `UPDATE pacs SET sos_link = $2 WHERE id = $1 AND sos_link IS DISTINCT FROM $2`

	insertRegistryCampaignQuery = `
INSERT INTO campaigns (candidate_id, committee_id, election_season_id, office_id, district_id, county_id,
	political_party_id, committee_name, committee_email, sos_link, date_added)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
RETURNING id`
)

// CampaignKey identifies a registry campaign: one committee in one season for
// one seat.
type CampaignKey struct {
	SeasonID    int64
	CommitteeID int64
	OfficeID    *int64
	DistrictID  *int64
	CountyID    *int64
	PartyID     *int64
}

type RegistryCampaign struct {
	Key           CampaignKey
	CandidateID   int64
	CommitteeName string
	Email         string
	SOSLink       string
}

type RegistryRepository struct{}

func NewRegistryRepository() *RegistryRepository {
	return &RegistryRepository{}
}

// CreatePAC inserts a committee for entityID and gives it a unique slug.
func (r *RegistryRepository) CreatePAC(ctx context.Context, entityID int64, name, committeeType string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, insertPACQuery, entityID, name, nullString(committeeType)).Scan(&id); err != nil {
		return 0, gerrors.Wrapf(mapPgError(err), "insert committee %q", name)
	}
	if _, err := upsert.AssignSlug(ctx, tx, "pacs", "slug", id, name); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RegistryRepository) SetCommitteeType(ctx context.Context, pacID int64, committeeType string) error {
	if committeeType == "" {
		return nil
	}
	return r.exec(ctx, updatePACTypeQuery, pacID, committeeType)
}

func (r *RegistryRepository) CandidateOfCommittee(ctx context.Context, pacID int64) (int64, error) {
	return queryID(ctx, "candidate of committee", candidateOfCommitteeQuery, pacID)
}

// CandidateByContact matches a candidate on email and phone digits.
func (r *RegistryRepository) CandidateByContact(ctx context.Context, email, phoneDigits string) (int64, error) {
	if email == "" || phoneDigits == "" {
		return 0, ErrNotFound
	}
	return queryID(ctx, "candidate by contact", candidateByContactQuery, email, phoneDigits)
}

func (r *RegistryRepository) CreateCandidate(ctx context.Context, entityID int64, fullName, email, phone string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, insertCandidateQuery, entityID, fullName, nullString(email), nullString(phone)).Scan(&id); err != nil {
		return 0, gerrors.Wrapf(mapPgError(err), "insert candidate %q", fullName)
	}
	if _, err := upsert.AssignSlug(ctx, tx, "candidates", "slug", id, fullName); err != nil {
		return 0, err
	}
	return id, nil
}

// FindCampaign returns the campaign id and its candidate id for k.
func (r *RegistryRepository) FindCampaign(ctx context.Context, k CampaignKey) (int64, *int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, nil, err
	}
	var id int64
	var candidateID *int64
	err = tx.QueryRow(ctx, findRegistryCampaignQuery,
		k.SeasonID, k.CommitteeID, k.OfficeID, k.DistrictID, k.CountyID, k.PartyID,
	).Scan(&id, &candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, gerrors.Wrap(err, "find campaign")
	}
	return id, candidateID, nil
}

func (r *RegistryRepository) CreateCampaign(ctx context.Context, c RegistryCampaign) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.QueryRow(ctx, insertRegistryCampaignQuery,
		c.CandidateID, c.Key.CommitteeID, c.Key.SeasonID, c.Key.OfficeID, c.Key.DistrictID, c.Key.CountyID,
		c.Key.PartyID, nullString(c.CommitteeName), nullString(c.Email), nullString(c.SOSLink),
	).Scan(&id)
	if err != nil {
		return 0, gerrors.Wrap(err, "insert campaign")
	}
	return id, nil
}

func (r *RegistryRepository) SetCampaignLink(ctx context.Context, campaignID int64, link string) error {
	return r.exec(ctx, setCampaignLinkQuery, campaignID, link)
}

func (r *RegistryRepository) SetCommitteeLink(ctx context.Context, pacID int64, link string) error {
	return r.exec(ctx, setPACLinkQuery, pacID, link)
}

func (r *RegistryRepository) exec(ctx context.Context, query string, args ...any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}
