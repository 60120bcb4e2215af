package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

// skippedReports are upstream report ids known to duplicate another report.
var skippedReports = map[int64]struct{}{
	21785: {},
}

// FilingsImporter loads the filing export through the amendment lifecycle.
type FilingsImporter struct {
	registry *mapping.Registry
	mapper   *mapping.Mapper
	owners   OwnerStore
	entities EntityStore
	refs     ReferenceStore
	manager  *filing.Manager
	runner   *Runner
	extract  extract.Options
}

func NewFilingsImporter(
	registry *mapping.Registry,
	mapper *mapping.Mapper,
	owners OwnerStore,
	entities EntityStore,
	refs ReferenceStore,
	manager *filing.Manager,
	runner *Runner,
	opts extract.Options,
) *FilingsImporter {
	return &FilingsImporter{
		registry: registry,
		mapper:   mapper,
		owners:   owners,
		entities: entities,
		refs:     refs,
		manager:  manager,
		runner:   runner,
		extract:  opts,
	}
}

type pendingFiling struct {
	rec    mapping.Record
	filing filing.Filing
}

func (i *FilingsImporter) Import(ctx context.Context, path string, opts RunOptions) (*Summary, error) {
	t, ok := i.registry.Table(mapping.KindFiling)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no mapping table", ErrUnsupportedKind, mapping.KindFiling)
	}
	return i.runner.Run(ctx, mapping.KindFiling, opts, func(ctx context.Context, s *Summary) error {
		records, err := i.read(path, t, s)
		if err != nil {
			return err
		}
		return rehearse(ctx, opts.DryRun, func(ctx context.Context) error {
			pending, err := i.prepare(ctx, records, s)
			if err != nil {
				return err
			}
			pending = i.dropConflicts(dropSuperseded(pending, s), s)
			for _, p := range pending {
				out, err := i.manager.Resolve(ctx, p.filing)
				if err != nil {
					return fmt.Errorf("report %d line %d: %w", p.filing.Identity.ReportID, p.rec.Line, err)
				}
				s.countTransition(out)
			}
			logWithFields(ctx, logrus.InfoLevel, fmt.Sprintf("found %d filings, created %d filings", s.Found, s.Created), logrus.Fields{
				"kind":    mapping.KindFiling,
				"linked":  s.Linked,
				"deleted": s.Deleted,
			})
			return nil
		})
	})
}

func (i *FilingsImporter) read(path string, t *mapping.Table, s *Summary) ([]mapping.Record, error) {
	src, err := extract.Open(path, i.extract)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	var out []mapping.Record
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		s.Found++
		rec, err := i.mapper.Map(row, t)
		if err != nil {
			s.skipRow(err)
			continue
		}
		reportID, _ := rec.Int("report_id")
		if _, skip := skippedReports[reportID]; skip {
			s.skip(fmt.Sprintf("report %d is a known duplicate", reportID))
			continue
		}
		for _, w := range rec.Warnings {
			s.warn(fmt.Sprintf("%s line %d: %s", rec.Kind, rec.Line, w))
		}
		out = append(out, rec)
	}
}

// prepare resolves the owner, period and campaign of every record in one
// transaction.
func (i *FilingsImporter) prepare(ctx context.Context, records []mapping.Record, s *Summary) ([]pendingFiling, error) {
	cache := lookup.New()
	defer cache.Reset()
	owners := NewOwnerResolver(i.owners, i.entities, cache)

	out := make([]pendingFiling, 0, len(records))
	err := inTx(ctx, func(ctx context.Context) error {
		for _, rec := range records {
			userID, _ := rec.Int("owner_user_id")
			entityID, err := owners.Resolve(ctx, userID, rec.String("committee_name"))
			if err != nil {
				return fmt.Errorf("resolve owner %d: %w", userID, err)
			}
			f := FilingFromRecord(rec, entityID)

			periodID, err := i.period(ctx, cache, rec)
			if err != nil {
				return err
			}
			f.FilingPeriodID = &periodID

			campaignID, err := i.campaign(ctx, cache, rec, entityID)
			switch {
			case err == nil:
				f.CampaignID = &campaignID
			case errors.Is(err, persistence.ErrNotFound):
				s.gap(&filing.ReferentialGapError{
					Kind:   mapping.KindFiling,
					Parent: "campaign",
					Ref:    fmt.Sprintf("report %d (owner %d, year %s)", f.Identity.ReportID, userID, electionYear(rec)),
				})
			default:
				return err
			}
			out = append(out, pendingFiling{rec: rec, filing: f})
		}
		return nil
	})
	return out, err
}

func (i *FilingsImporter) period(ctx context.Context, cache *lookup.Cache, rec mapping.Record) (int64, error) {
	start, _ := rec.Time("period_start")
	end, _ := rec.Time("period_end")
	desc := rec.String("period_description")
	natural := desc + "|" + start.Format(time.DateOnly) + "|" + end.Format(time.DateOnly)
	return cache.GetOrLoad(ctx, "filing_period", natural, func(ctx context.Context) (int64, error) {
		var due *time.Time
		if d, ok := rec.Time("due_date"); ok {
			due = &d
		}
		return i.refs.FilingPeriod(ctx, desc, &start, &end, due)
	})
}

func (i *FilingsImporter) campaign(ctx context.Context, cache *lookup.Cache, rec mapping.Record, entityID int64) (int64, error) {
	year := electionYear(rec)
	office := rec.String("office_name")
	district := rec.String("district_name")
	natural := fmt.Sprintf("%d|%s|%s|%s", entityID, year, office, district)
	return cache.GetOrLoad(ctx, "campaign", natural, func(ctx context.Context) (int64, error) {
		return i.owners.CampaignForFiling(ctx, entityID, year, office, district)
	})
}

// dropConflicts removes every filing of a key carrying more than one final
// submission and reports the conflict.
func (i *FilingsImporter) dropConflicts(pending []pendingFiling, s *Summary) []pendingFiling {
	incoming := make([]filing.Filing, 0, len(pending))
	for _, p := range pending {
		incoming = append(incoming, p.filing)
	}
	conflicts := filing.CheckBatch(incoming)
	if len(conflicts) == 0 {
		return pending
	}
	bad := make(map[filing.Key]struct{}, len(conflicts))
	for _, c := range conflicts {
		bad[c.Key] = struct{}{}
		s.skip(c.Error())
	}
	s.Status = StatusConflict

	out := pending[:0]
	for _, p := range pending {
		if _, ok := bad[p.filing.Key]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// dropSuperseded removes non-final versions of a report whose final version
// is in the same batch. The final version replaces them either way.
func dropSuperseded(pending []pendingFiling, s *Summary) []pendingFiling {
	finalVersion := make(map[int64]int64)
	for _, p := range pending {
		if p.filing.Final {
			finalVersion[p.filing.Identity.ReportID] = p.filing.Identity.ReportVersionID
		}
	}
	out := pending[:0]
	for _, p := range pending {
		id := p.filing.Identity
		if v, ok := finalVersion[id.ReportID]; ok && !p.filing.Final {
			s.skip(fmt.Sprintf("report %d version %d superseded by version %d", id.ReportID, id.ReportVersionID, v))
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Summary) countTransition(out filing.Outcome) {
	filingTransitions.WithLabelValues(string(out.Transition)).Inc()
	switch out.Transition {
	case filing.Create, filing.CreatePending, filing.Supersede:
		s.Created++
	case filing.Promote:
		s.Updated++
	case filing.Link:
		s.Linked++
	}
	s.Deleted += len(out.Deleted)
}

// FilingFromRecord builds the filing of one export row owned by entityID.
// The row is final unless it reports amendments; an explicit final column
// wins. Balances are only carried when the row has an opening balance.
func FilingFromRecord(rec mapping.Record, entityID int64) filing.Filing {
	start, _ := rec.Time("period_start")
	end, _ := rec.Time("period_end")
	f := filing.Filing{
		Key:            filing.NewKey(entityID, rec.String("period_description"), start, end),
		ReportFileName: rec.String("report_file_name"),
	}
	f.Identity.ReportID, _ = rec.Int("report_id")
	f.Identity.ReportVersionID, _ = rec.Int("report_version_id")
	// a row with amendments pending is not final until a later version
	// arrives with a zero count
	if n, ok := rec.Int("amendment_count"); ok && n != 0 {
		f.Amended = true
	}
	f.Final = !f.Amended
	if final, ok := rec.Bool("final"); ok {
		f.Final = final
	}
	if filed, ok := rec.Time("filed_date"); ok {
		f.FiledDate = &filed
	}
	f.DateClosed = &end

	if opening, ok := rec.Money("opening_balance"); ok {
		f.OpeningBalance = &opening
		if v, ok := rec.Money("closing_balance"); ok {
			f.ClosingBalance = &v
		}
		if v, ok := rec.Money("total_loans"); ok {
			f.TotalLoans = &v
		}
		if v, ok := rec.Money("total_inkind"); ok {
			f.TotalInkind = &v
		}
		if v, ok := rec.Money("total_unpaid_debts"); ok {
			f.TotalUnpaidDebts = &v
		}
	}
	return f
}

func electionYear(rec mapping.Record) string {
	if y, ok := rec.Int("election_year"); ok && y > 0 {
		return strconv.FormatInt(y, 10)
	}
	start, _ := rec.Time("period_start")
	return strconv.Itoa(start.Year())
}
