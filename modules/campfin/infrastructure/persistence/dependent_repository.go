package persistence

import (
	"context"
	"errors"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/nmcampfin/campfin-etl/modules/campfin/dependents"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

// scoped source keys of one filing: transactions of the class, plus loans and
// special events for contributions. year = 0 means every year.
const dependentKeysQuery = `
SELECT 'transactions', t.id, t.source_key
FROM transactions t JOIN transaction_types tt ON tt.id = t.transaction_type_id
WHERE t.filing_id = $1 AND tt.contribution = $2
	AND ($3::int = 0 OR EXTRACT(YEAR FROM t.received_date)::int = $3::int)
UNION ALL
SELECT 'loans', l.id, l.source_key FROM loans l
WHERE $2 AND l.filing_id = $1
	AND ($3::int = 0 OR EXTRACT(YEAR FROM l.received_date)::int = $3::int)
UNION ALL
SELECT 'special_events', s.id, s.source_key FROM special_events s
WHERE $2 AND s.filing_id = $1
	AND ($3::int = 0 OR EXTRACT(YEAR FROM s.event_date)::int = $3::int)`

const (
	insertTransactionQuery = `
INSERT INTO transactions (filing_id, transaction_type_id, contact_id, amount, received_date, check_number,
	description, full_name, name_prefix, first_name, middle_name, last_name, suffix, company_name, occupation,
	address, city, state, zipcode, source_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (filing_id, source_key) DO NOTHING`

	insertLoanQuery = `
INSERT INTO loans (filing_id, contact_id, amount, received_date, check_number, company_name, address, city,
	state, zipcode, source_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (filing_id, source_key) DO NOTHING
RETURNING id`

	insertLoanTransactionQuery = `
INSERT INTO loan_transactions (loan_id, filing_id, transaction_type_id, amount, transaction_date)
VALUES ($1, $2, $3, $4, $5)`

	insertSpecialEventQuery = `
INSERT INTO special_events (filing_id, event_date, total_admissions, sponsors, address, city, zipcode, source_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (filing_id, source_key) DO NOTHING`

	// filings of one entity that hold dependents of the class in the year
	yearFilingsQuery = `
SELECT DISTINCT f.id FROM filings f
WHERE f.entity_id = $1 AND (
	EXISTS (SELECT 1 FROM transactions t JOIN transaction_types tt ON tt.id = t.transaction_type_id
		WHERE t.filing_id = f.id AND tt.contribution = $2 AND EXTRACT(YEAR FROM t.received_date)::int = $3::int)
	OR ($2 AND EXISTS (SELECT 1 FROM loans l WHERE l.filing_id = f.id AND EXTRACT(YEAR FROM l.received_date)::int = $3::int))
	OR ($2 AND EXISTS (SELECT 1 FROM special_events s WHERE s.filing_id = f.id AND EXTRACT(YEAR FROM s.event_date)::int = $3::int))
)
ORDER BY f.id`
)

// DependentRef points at one stored dependent row.
type DependentRef struct {
	Table string
	ID    int64
}

// ResolvedDependent is a dependent with its references looked up.
type ResolvedDependent struct {
	dependents.Dependent
	TypeID    int64
	ContactID *int64
}

var dependentTables = map[string]struct{}{
	"transactions":   {},
	"loans":          {},
	"special_events": {},
}

type DependentRepository struct{}

func NewDependentRepository() *DependentRepository {
	return &DependentRepository{}
}

// Keys lists the stored dependents of filingID in scope, by source key.
func (r *DependentRepository) Keys(ctx context.Context, filingID int64, class dependents.Class, year int) (map[string]DependentRef, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, dependentKeysQuery, filingID, class == dependents.ClassContributions, year)
	if err != nil {
		return nil, gerrors.Wrapf(err, "list dependents of filing %d", filingID)
	}
	defer rows.Close()

	out := make(map[string]DependentRef)
	for rows.Next() {
		var ref DependentRef
		var key string
		if err := rows.Scan(&ref.Table, &ref.ID, &key); err != nil {
			return nil, gerrors.Wrap(err, "scan dependent")
		}
		out[key] = ref
	}
	return out, rows.Err()
}

// Insert stores d under filingID. Loans also record their payment, typed
// paymentTypeID. It reports whether a row was written.
func (r *DependentRepository) Insert(ctx context.Context, filingID int64, d ResolvedDependent, paymentTypeID int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	c := d.Party
	switch d.Kind {
	case dependents.KindTransaction:
		tag, err := tx.Exec(ctx, insertTransactionQuery,
			filingID, d.TypeID, d.ContactID, d.Amount, d.Date, nullString(d.CheckNumber),
			nullString(d.Description), c.FullName, c.Prefix, c.FirstName, c.MiddleName, c.LastName, c.Suffix,
			d.CompanyName, c.Occupation, c.Address.Street, c.Address.City, c.Address.State, c.Address.Zipcode,
			d.SourceKey,
		)
		if err != nil {
			return false, gerrors.Wrap(mapPgError(err), "insert transaction")
		}
		return tag.RowsAffected() > 0, nil

	case dependents.KindLoan:
		var loanID int64
		err := tx.QueryRow(ctx, insertLoanQuery,
			filingID, d.ContactID, d.Amount, d.Date, nullString(d.CheckNumber), d.CompanyName,
			c.Address.Street, c.Address.City, c.Address.State, c.Address.Zipcode, d.SourceKey,
		).Scan(&loanID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, nil
			}
			return false, gerrors.Wrap(err, "insert loan")
		}
		if _, err := tx.Exec(ctx, insertLoanTransactionQuery, loanID, filingID, paymentTypeID, d.Amount, d.Date); err != nil {
			return false, gerrors.Wrap(err, "insert loan payment")
		}
		return true, nil

	case dependents.KindSpecialEvent:
		tag, err := tx.Exec(ctx, insertSpecialEventQuery,
			filingID, d.Date, d.Amount, d.Sponsors, c.Address.Street, c.Address.City, c.Address.Zipcode, d.SourceKey,
		)
		if err != nil {
			return false, gerrors.Wrap(err, "insert special event")
		}
		return tag.RowsAffected() > 0, nil
	}
	return false, fmt.Errorf("unknown dependent kind %q", d.Kind)
}

// Delete removes the given dependents. Loan payments cascade from loans.
func (r *DependentRepository) Delete(ctx context.Context, refs []DependentRef) (int, error) {
	byTable := make(map[string][]int64)
	for _, ref := range refs {
		if _, ok := dependentTables[ref.Table]; !ok {
			return 0, fmt.Errorf("unknown dependent table %q", ref.Table)
		}
		byTable[ref.Table] = append(byTable[ref.Table], ref.ID)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, table := range []string{"transactions", "loans", "special_events"} {
		ids := byTable[table]
		if len(ids) == 0 {
			continue
		}
		tag, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE id = ANY($1)", ids)
		if err != nil {
			return deleted, gerrors.Wrapf(err, "delete %s", table)
		}
		deleted += int(tag.RowsAffected())
	}
	return deleted, nil
}

// DeleteYear removes every dependent of the class the entity reported in
// year and returns the filings that lost rows.
func (r *DependentRepository) DeleteYear(ctx context.Context, entityID int64, class dependents.Class, year int) ([]int64, int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := tx.Query(ctx, yearFilingsQuery, entityID, class == dependents.ClassContributions, year)
	if err != nil {
		return nil, 0, gerrors.Wrap(err, "find filings of year")
	}
	var filings []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, gerrors.Wrap(err, "scan filing id")
		}
		filings = append(filings, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	deleted := 0
	for _, id := range filings {
		keys, err := r.Keys(ctx, id, class, year)
		if err != nil {
			return nil, deleted, err
		}
		refs := make([]DependentRef, 0, len(keys))
		for _, ref := range keys {
			refs = append(refs, ref)
		}
		n, err := r.Delete(ctx, refs)
		deleted += n
		if err != nil {
			return nil, deleted, err
		}
	}
	return filings, deleted, nil
}
