package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

const (
	findFilingsByKeyQuery = `
SELECT id, COALESCE(report_id, 0), COALESCE(report_version_id, 0), final
FROM filings
WHERE entity_id = $1 AND period_description = $2 AND period_start_year = $3 AND period_end_year = $4
ORDER BY id`

	deleteFilingsQuery = `DELETE FROM filings WHERE id = ANY($1)`

	openingBalanceQuery = `SELECT opening_balance FROM filings WHERE id = $1`

	// contributions and expenditures split on the transaction type; loans
	// count payments only
	sumDependentsQuery = `
SELECT
	COALESCE((SELECT SUM(t.amount) FROM transactions t JOIN transaction_types tt ON tt.id = t.transaction_type_id
		WHERE t.filing_id = $1 AND tt.contribution), 0),
	COALESCE((SELECT SUM(t.amount) FROM transactions t JOIN transaction_types tt ON tt.id = t.transaction_type_id
		WHERE t.filing_id = $1 AND NOT tt.contribution), 0),
	COALESCE((SELECT SUM(lt.amount) FROM loan_transactions lt JOIN loan_transaction_types ltt ON ltt.id = lt.transaction_type_id
		WHERE lt.filing_id = $1 AND ltt.description = 'Payment'), 0),
	COALESCE((SELECT SUM(t.amount) FROM transactions t JOIN transaction_types tt ON tt.id = t.transaction_type_id
		WHERE t.filing_id = $1 AND tt.description = 'In-Kind Contribution'), 0)`

	saveTotalsQuery = `
UPDATE filings
SET total_contributions = $2, total_expenditures = $3, total_loans = $4, total_inkind = $5, closing_balance = $6
WHERE id = $1`
)

type FilingRepository struct{}

func NewFilingRepository() filing.Repository {
	return &FilingRepository{}
}

func (r *FilingRepository) FindByKey(ctx context.Context, key filing.Key) ([]filing.Existing, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, findFilingsByKeyQuery, key.EntityID, key.PeriodDescription, key.StartYear, key.EndYear)
	if err != nil {
		return nil, gerrors.Wrap(err, "find filings by key")
	}
	defer rows.Close()

	var out []filing.Existing
	for rows.Next() {
		var e filing.Existing
		if err := rows.Scan(&e.ID, &e.Identity.ReportID, &e.Identity.ReportVersionID, &e.Final); err != nil {
			return nil, gerrors.Wrap(err, "scan filing")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *FilingRepository) Create(ctx context.Context, f filing.Filing) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	query, args := BuildFilingInsert(f)
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, gerrors.Wrapf(mapPgError(err), "insert filing %s", f.Key)
	}
	return id, nil
}

func (r *FilingRepository) Update(ctx context.Context, id int64, f filing.Filing) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	query, args := BuildFilingUpdate(id, f)
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return gerrors.Wrapf(mapPgError(err), "update filing %d", id)
	}
	if tag.RowsAffected() == 0 {
		return filing.ErrNotFound
	}
	return nil
}

// Delete removes filings; dependents go with them through ON DELETE CASCADE.
func (r *FilingRepository) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, deleteFilingsQuery, ids); err != nil {
		return gerrors.Wrap(err, "delete filings")
	}
	return nil
}

func (r *FilingRepository) OpeningBalance(ctx context.Context, id int64) (*decimal.Decimal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var opening decimal.NullDecimal
	if err := tx.QueryRow(ctx, openingBalanceQuery, id).Scan(&opening); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, filing.ErrNotFound
		}
		return nil, gerrors.Wrapf(err, "opening balance of filing %d", id)
	}
	if !opening.Valid {
		return nil, nil
	}
	return &opening.Decimal, nil
}

func (r *FilingRepository) SumDependents(ctx context.Context, id int64) (filing.Sums, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return filing.Sums{}, err
	}
	var s filing.Sums
	if err := tx.QueryRow(ctx, sumDependentsQuery, id).Scan(&s.Contributions, &s.Expenditures, &s.Loans, &s.Inkind); err != nil {
		return filing.Sums{}, gerrors.Wrapf(err, "sum dependents of filing %d", id)
	}
	return s, nil
}

func (r *FilingRepository) SaveTotals(ctx context.Context, id int64, t filing.Totals) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, saveTotalsQuery, id, t.Contributions, t.Expenditures, t.Loans, t.Inkind, t.Closing)
	return err
}

// BuildFilingInsert renders the insert of a new filing returning its id.
func BuildFilingInsert(f filing.Filing) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("filings")
	sb.Cols(
		"entity_id", "filing_period_id", "campaign_id", "report_id", "report_version_id",
		"period_description", "period_start_year", "period_end_year", "filed_date", "date_closed",
		"opening_balance", "closing_balance", "total_loans", "total_inkind", "total_unpaid_debts",
		"final", "amended", "report_file_name",
	)
	sb.Values(
		f.Key.EntityID, f.FilingPeriodID, f.CampaignID, nullID(f.Identity.ReportID), nullID(f.Identity.ReportVersionID),
		f.Key.PeriodDescription, f.Key.StartYear, f.Key.EndYear, f.FiledDate, f.DateClosed,
		f.OpeningBalance, f.ClosingBalance, f.TotalLoans, f.TotalInkind, f.TotalUnpaidDebts,
		f.Final, f.Amended, nullString(f.ReportFileName),
	)
	sb.SQL("RETURNING id")
	return sb.Build()
}

// BuildFilingUpdate rewrites a stored filing in place. Optional values the
// incoming submission lacks keep their stored value; a zero identity keeps
// the stored identity.
func BuildFilingUpdate(id int64, f filing.Filing) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("filings")
	keep := func(col string, v any) string {
		return col + " = COALESCE(" + sb.Var(v) + ", " + col + ")"
	}
	sb.Set(
		keep("report_id", nullID(f.Identity.ReportID)),
		keep("report_version_id", nullID(f.Identity.ReportVersionID)),
		keep("filing_period_id", f.FilingPeriodID),
		keep("campaign_id", f.CampaignID),
		keep("filed_date", f.FiledDate),
		keep("date_closed", f.DateClosed),
		keep("opening_balance", f.OpeningBalance),
		keep("closing_balance", f.ClosingBalance),
		keep("total_loans", f.TotalLoans),
		keep("total_inkind", f.TotalInkind),
		keep("total_unpaid_debts", f.TotalUnpaidDebts),
		keep("report_file_name", nullString(f.ReportFileName)),
		sb.Assign("final", f.Final),
		sb.Assign("amended", f.Amended),
	)
	sb.Where(sb.Equal("id", id))
	return sb.Build()
}

func nullID(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
