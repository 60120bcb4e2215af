package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/nmcampfin/campfin-etl/modules/campfin/contacts"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const (
	findFilingPeriodQuery = `
SELECT id FROM filing_periods
WHERE description = $1 AND initial_date IS NOT DISTINCT FROM $2 AND end_date IS NOT DISTINCT FROM $3
ORDER BY id LIMIT 1`

	insertFilingPeriodQuery = `
INSERT INTO filing_periods (description, initial_date, end_date, due_date)
VALUES ($1, $2, $3, $4)
RETURNING id`

	upsertStateQuery = `
INSERT INTO states (postal_code) VALUES ($1)
ON CONFLICT (postal_code) DO UPDATE SET postal_code = EXCLUDED.postal_code
RETURNING id`

	upsertContactTypeQuery = `
INSERT INTO contact_types (description) VALUES ($1)
ON CONFLICT (description) DO UPDATE SET description = EXCLUDED.description
RETURNING id`

	upsertAddressQuery = `
INSERT INTO addresses (street, city, state_id, zipcode, fingerprint)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (fingerprint) DO UPDATE SET fingerprint = EXCLUDED.fingerprint
RETURNING id`

	upsertContactQuery = `
INSERT INTO contacts (contact_type_id, prefix, first_name, middle_name, last_name, suffix, full_name,
	company_name, occupation, address_id, fingerprint)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (fingerprint) DO UPDATE SET fingerprint = EXCLUDED.fingerprint
RETURNING id`

	findTransactionTypeQuery     = `SELECT id FROM transaction_types WHERE description = $1`
	findLoanTransactionTypeQuery = `SELECT id FROM loan_transaction_types WHERE description = $1`

	upsertPoliticalPartyQuery = `
INSERT INTO political_parties (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

	findElectionSeasonQuery   = `SELECT id FROM election_seasons WHERE year = $1 AND NOT special ORDER BY id LIMIT 1`
	insertElectionSeasonQuery = `INSERT INTO election_seasons (year) VALUES ($1) RETURNING id`

	findOfficeQuery   = `SELECT id FROM offices WHERE description = $1 AND office_type IS NOT DISTINCT FROM $2 ORDER BY id LIMIT 1`
	insertOfficeQuery = `INSERT INTO offices (description, office_type) VALUES ($1, $2) RETURNING id`

	findDistrictQuery   = `SELECT id FROM districts WHERE name = $1 AND office_id = $2 ORDER BY id LIMIT 1`
	insertDistrictQuery = `INSERT INTO districts (name, office_id) VALUES ($1, $2) RETURNING id`

	findCountyQuery = `SELECT id FROM counties WHERE name = $1 ORDER BY id LIMIT 1`
)

// ReferenceRepository gets or creates the small lookup rows that transaction
// and registry loads hang their records on.
type ReferenceRepository struct{}

func NewReferenceRepository() *ReferenceRepository {
	return &ReferenceRepository{}
}

// FilingPeriod returns the period with the natural key (description, start,
// end), creating it when missing.
func (r *ReferenceRepository) FilingPeriod(ctx context.Context, description string, start, end, due *time.Time) (int64, error) {
	return r.findOrInsert(ctx, "filing period",
		findFilingPeriodQuery, []any{description, start, end},
		insertFilingPeriodQuery, []any{description, start, end, due},
	)
}

func (r *ReferenceRepository) State(ctx context.Context, postalCode string) (int64, error) {
	return r.upsert(ctx, "state", upsertStateQuery, postalCode)
}

func (r *ReferenceRepository) ContactType(ctx context.Context, description string) (int64, error) {
	return r.upsert(ctx, "contact type", upsertContactTypeQuery, description)
}

// Address stores a by its fingerprint. stateID may be nil.
func (r *ReferenceRepository) Address(ctx context.Context, a contacts.Address, stateID *int64) (int64, error) {
	return r.upsert(ctx, "address", upsertAddressQuery, a.Street, a.City, stateID, a.Zipcode, a.Fingerprint())
}

// Contact stores c by its fingerprint. Equal contacts map to one row.
func (r *ReferenceRepository) Contact(ctx context.Context, c contacts.Contact, typeID int64, addressID *int64) (int64, error) {
	return r.upsert(ctx, "contact", upsertContactQuery,
		typeID, c.Prefix, c.FirstName, c.MiddleName, c.LastName, c.Suffix, c.FullName,
		c.CompanyName, c.Occupation, addressID, c.Fingerprint(),
	)
}

func (r *ReferenceRepository) TransactionType(ctx context.Context, description string) (int64, error) {
	return r.find(ctx, "transaction type", findTransactionTypeQuery, description)
}

func (r *ReferenceRepository) LoanTransactionType(ctx context.Context, description string) (int64, error) {
	return r.find(ctx, "loan transaction type", findLoanTransactionTypeQuery, description)
}

func (r *ReferenceRepository) PoliticalParty(ctx context.Context, name string) (int64, error) {
	return r.upsert(ctx, "political party", upsertPoliticalPartyQuery, name)
}

func (r *ReferenceRepository) ElectionSeason(ctx context.Context, year string) (int64, error) {
	return r.findOrInsert(ctx, "election season",
		findElectionSeasonQuery, []any{year},
		insertElectionSeasonQuery, []any{year},
	)
}

func (r *ReferenceRepository) Office(ctx context.Context, description string, officeType *string) (int64, error) {
	return r.findOrInsert(ctx, "office",
		findOfficeQuery, []any{description, officeType},
		insertOfficeQuery, []any{description, officeType},
	)
}

func (r *ReferenceRepository) District(ctx context.Context, name string, officeID int64) (int64, error) {
	return r.findOrInsert(ctx, "district",
		findDistrictQuery, []any{name, officeID},
		insertDistrictQuery, []any{name, officeID},
	)
}

// County finds a county by name. Counties are only created by the county load.
func (r *ReferenceRepository) County(ctx context.Context, name string) (int64, error) {
	return r.find(ctx, "county", findCountyQuery, name)
}

func (r *ReferenceRepository) upsert(ctx context.Context, what, query string, args ...any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, gerrors.Wrapf(err, "get or create %s", what)
	}
	return id, nil
}

func (r *ReferenceRepository) find(ctx context.Context, what, query string, args ...any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, gerrors.Wrapf(ErrNotFound, "%s %v", what, args)
		}
		return 0, gerrors.Wrapf(err, "find %s", what)
	}
	return id, nil
}

func (r *ReferenceRepository) findOrInsert(ctx context.Context, what, findQuery string, findArgs []any, insertQuery string, insertArgs []any) (int64, error) {
	id, err := r.find(ctx, what, findQuery, findArgs...)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	if err := tx.QueryRow(ctx, insertQuery, insertArgs...).Scan(&id); err != nil {
		return 0, gerrors.Wrapf(err, "insert %s", what)
	}
	return id, nil
}
