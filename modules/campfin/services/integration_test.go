package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nmcampfin/campfin-etl/modules/campfin/dependents"
	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/pkg/itf"
)

type importers struct {
	filings      *FilingsImporter
	transactions *TransactionsImporter
	kinds        *KindImporter
}

func newImporters(t *testing.T) importers {
	t.Helper()

	reg := mapping.DefaultRegistry()
	mapper := mapping.NewMapper(time.UTC)
	runner := NewRunner(nil, time.Minute, nil)
	opts := extract.Options{WorkDir: t.TempDir()}
	owners := persistence.NewOwnerRepository()
	entities := persistence.NewEntityRepository()
	refs := persistence.NewReferenceRepository()
	manager := filing.NewManager(persistence.NewFilingRepository())

	return importers{
		filings:      NewFilingsImporter(reg, mapper, owners, entities, refs, manager, runner, opts),
		transactions: NewTransactionsImporter(reg, mapper, owners, entities, refs, persistence.NewDependentRepository(), manager, runner, opts),
		kinds:        NewKindImporter(reg, mapper, persistence.NewSnapshotRepository(), entities, runner, 100, opts),
	}
}

func writeCSV(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

const contributionHeader = "OrgID,Committee Name,Report Name,Start of Period,End of Period,Contribution Type,Transaction Amount,Transaction Date,Contributor Code,First Name,Last Name,Contributor Employer,Contributor Address Line 1,Contributor City,Contributor State,Contributor Zip Code"

func conOptions() TransactionOptions {
	return TransactionOptions{Class: dependents.ClassContributions}
}

func TestTransactionsImport_Idempotent(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	path := writeCSV(t, "con.csv",
		contributionHeader,
		"100,Friends of Parks,Q1,2023-01-01,2023-03-31,Monetary contribution,250.00,2023-02-14,Individual,Jane,Doe,,1 Main St,Santa Fe,NM,87501",
	)

	s, err := imp.transactions.Import(env.Ctx, path, conOptions())
	require.NoError(t, err)
	require.Equal(t, StatusOK, s.Status)
	require.Equal(t, 1, s.Created)

	require.Equal(t, int64(1), env.CountRows(t, "entities"))
	require.Equal(t, int64(1), env.CountRows(t, "contacts"))
	require.Equal(t, int64(1), env.CountRows(t, "filings"))
	require.Equal(t, int64(1), env.CountRows(t, "transactions"))

	var amount decimal.Decimal
	var company *string
	require.NoError(t, env.Pool.QueryRow(env.Ctx, "SELECT amount, company_name FROM transactions").Scan(&amount, &company))
	require.Equal(t, "250.00", amount.StringFixed(2))
	require.NotNil(t, company)
	require.Empty(t, *company)

	s, err = imp.transactions.Import(env.Ctx, path, conOptions())
	require.NoError(t, err)
	require.Equal(t, 0, s.Created)
	require.Equal(t, 1, s.Unchanged)
	require.Equal(t, int64(1), env.CountRows(t, "entities"))
	require.Equal(t, int64(1), env.CountRows(t, "contacts"))
	require.Equal(t, int64(1), env.CountRows(t, "filings"))
	require.Equal(t, int64(1), env.CountRows(t, "transactions"))
}

func TestTransactionsImport_SkippedRowKeepsStoredTransaction(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	rows := []string{
		"100,Friends of Parks,Q1,2023-01-01,2023-03-31,Monetary contribution,250.00,2023-02-14,Individual,Jane,Doe,,,,,",
		"100,Friends of Parks,Q1,2023-01-01,2023-03-31,Monetary contribution,75.00,2023-02-15,Individual,Bo,Kim,,,,,",
	}
	_, err := imp.transactions.Import(env.Ctx, writeCSV(t, "con.csv", contributionHeader, rows[0], rows[1]), conOptions())
	require.NoError(t, err)
	require.Equal(t, int64(2), env.CountRows(t, "transactions"))

	broken := strings.Replace(rows[1], "75.00", "n/a", 1)
	s, err := imp.transactions.Import(env.Ctx, writeCSV(t, "con.csv", contributionHeader, rows[0], broken), conOptions())
	require.NoError(t, err)
	require.Equal(t, 1, s.Skipped)
	require.Zero(t, s.Deleted)
	require.NotEmpty(t, s.Warnings)
	require.Equal(t, int64(2), env.CountRows(t, "transactions"))

	s, err = imp.transactions.Import(env.Ctx, writeCSV(t, "con.csv", contributionHeader, rows[0]), conOptions())
	require.NoError(t, err)
	require.Equal(t, 1, s.Deleted, "a row gone from a clean file is still removed")
	require.Equal(t, int64(1), env.CountRows(t, "transactions"))
}

const filingHeader = "ReportID,ReportVersionID,Amended,OrgID,Committee Name,ReportName,FilingStartDate,FilingEndDate,FiledDate"

func TestAmendedFilingReplacesDependents(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	original := writeCSV(t, "filings.csv",
		filingHeader,
		"1001,1,0,100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,2023-04-10",
	)
	_, err := imp.filings.Import(env.Ctx, original, RunOptions{})
	require.NoError(t, err)

	_, err = imp.transactions.Import(env.Ctx, writeCSV(t, "con.csv",
		contributionHeader,
		"100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,Monetary Contribution,100.00,2023-02-01,Individual,Ann,Lee,,,,,",
		"100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,Monetary Contribution,100.00,2023-02-02,Individual,Bo,Kim,,,,,",
		"100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,Monetary Contribution,100.00,2023-02-03,Individual,Cy,Ortiz,,,,,",
	), conOptions())
	require.NoError(t, err)
	require.Equal(t, int64(3), env.CountRows(t, "transactions"))

	pending := writeCSV(t, "filings.csv",
		filingHeader,
		"1001,2,1,100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,2023-05-01",
	)
	s, err := imp.filings.Import(env.Ctx, pending, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Created)
	require.Zero(t, s.Deleted, "a pending amendment keeps the final filing")
	require.Equal(t, int64(2), env.CountRows(t, "filings"))
	require.Equal(t, int64(3), env.CountRows(t, "transactions"))

	amended := writeCSV(t, "filings.csv",
		filingHeader,
		"1001,3,0,100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,2023-05-02",
	)
	s, err = imp.filings.Import(env.Ctx, amended, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Created)
	require.Equal(t, 2, s.Deleted, "the final version replaces the final and the pending one")
	require.Equal(t, int64(1), env.CountRows(t, "filings"))
	require.Equal(t, int64(0), env.CountRows(t, "transactions"))

	_, err = imp.transactions.Import(env.Ctx, writeCSV(t, "con.csv",
		contributionHeader,
		"100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,Monetary Contribution,100.00,2023-02-01,Individual,Ann,Lee,,,,,",
		"100,Friends of Parks,Q1 2023,2023-01-01,2023-03-31,Monetary Contribution,50.00,2023-02-02,Individual,Bo,Kim,,,,,",
	), conOptions())
	require.NoError(t, err)

	require.Equal(t, int64(1), env.CountRows(t, "filings"))
	require.Equal(t, int64(2), env.CountRows(t, "transactions"))
	var total decimal.Decimal
	var version int64
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT total_contributions, report_version_id FROM filings WHERE final").Scan(&total, &version))
	require.Equal(t, "150.00", total.StringFixed(2))
	require.Equal(t, int64(3), version)
}

func TestFilingsImport_VersionsOfOneReportInOneBatch(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	path := writeCSV(t, "filings.csv",
		filingHeader,
		"4001,1,1,500,Committee D,Q4 2023,2023-10-01,2023-12-31,2024-01-10",
		"4001,2,0,500,Committee D,Q4 2023,2023-10-01,2023-12-31,2024-01-12",
	)
	for run := 0; run < 2; run++ {
		s, err := imp.filings.Import(env.Ctx, path, RunOptions{})
		require.NoError(t, err)
		require.Equal(t, StatusOK, s.Status)
		require.Equal(t, 1, s.Skipped)
	}

	require.Equal(t, int64(1), env.CountRows(t, "filings"))
	var version int64
	var final, amended bool
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		"SELECT report_version_id, final, amended FROM filings").Scan(&version, &final, &amended))
	require.Equal(t, int64(2), version)
	require.True(t, final)
	require.False(t, amended)
}

func TestFilingsImport_ConflictingFinalsAreNotApplied(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	path := writeCSV(t, "filings.csv",
		filingHeader,
		"2001,1,0,300,Committee A,Q2 2023,2023-04-01,2023-06-30,2023-07-10",
		"2002,1,0,300,Committee A,Q2 2023,2023-04-01,2023-06-30,2023-07-11",
		"2003,1,0,301,Committee B,Q2 2023,2023-04-01,2023-06-30,2023-07-11",
	)
	s, err := imp.filings.Import(env.Ctx, path, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusConflict, s.Status)
	require.Equal(t, 1, s.Created)
	require.Equal(t, int64(1), env.CountRows(t, "filings"))
}

func TestFilingsImport_DryRunWritesNothing(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	path := writeCSV(t, "filings.csv",
		filingHeader,
		"3001,1,0,400,Committee C,Q3 2023,2023-07-01,2023-09-30,2023-10-10",
	)
	s, err := imp.filings.Import(env.Ctx, path, RunOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, StatusDryRun, s.Status)
	require.Equal(t, 1, s.Created)
	require.Equal(t, int64(0), env.CountRows(t, "filings"))
	require.Equal(t, int64(0), env.CountRows(t, "entities"))
}

func TestKindImport_ReloadIsUnchanged(t *testing.T) {
	env := itf.Setup(t)
	imp := newImporters(t)

	path := writeCSV(t, "counties.csv",
		"countyid,description",
		"1,Bernalillo",
		"2,Santa Fe",
	)
	s, err := imp.kinds.Import(env.Ctx, mapping.KindCounty, path, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, s.Created)

	s, err = imp.kinds.Import(env.Ctx, mapping.KindCounty, path, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, s.Created)
	require.Equal(t, 0, s.Updated)
	require.Equal(t, 2, s.Unchanged)
	require.Equal(t, int64(2), env.CountRows(t, "counties"))
}

func TestKindImport_MalformedSourceRollsBackEarlierBatches(t *testing.T) {
	env := itf.Setup(t)
	imp := NewKindImporter(
		mapping.DefaultRegistry(), mapping.NewMapper(time.UTC), persistence.NewSnapshotRepository(),
		persistence.NewEntityRepository(), NewRunner(nil, time.Minute, nil), 1, extract.Options{WorkDir: t.TempDir()},
	)

	path := writeCSV(t, "counties.csv",
		"countyid,description",
		"1,Bernalillo",
		"2,Santa Fe",
		"3,Taos,extra",
	)
	_, err := imp.Import(env.Ctx, mapping.KindCounty, path, RunOptions{})
	require.Error(t, err)
	require.Equal(t, int64(0), env.CountRows(t, "counties"))
}

func TestKindImport_RejectsNonPipelineKinds(t *testing.T) {
	imp := newImporters(t)
	_, err := imp.kinds.Import(t.Context(), mapping.KindFiling, "unused.csv", RunOptions{})
	require.ErrorIs(t, err, ErrUnsupportedKind)
}
