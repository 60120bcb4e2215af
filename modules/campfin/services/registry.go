package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/filing"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

const sosBaseURL = "https://login.cfis.sos.state.nm.us/#"

var (
	yearPattern = regexp.MustCompile(`\d{4}`)
	nonDigits   = regexp.MustCompile(`[^0-9]`)
)

// CommitteeLink is the public registry page of a committee.
func CommitteeLink(registryID string) string {
	if registryID == "" {
		return ""
	}
	return fmt.Sprintf("%s/exploreCommitteeDetail/%s", sosBaseURL, registryID)
}

// CampaignLink is the public registry page of a candidate campaign. Missing
// parts are rendered as null, as the registry does.
func CampaignLink(registryID, officeRef, districtRef string, electionRef float64, hasElection bool, electionYear int64) string {
	if registryID == "" {
		return ""
	}
	orNull := func(s string) string {
		if s == "" {
			return "null"
		}
		return s
	}
	election := "null"
	if hasElection {
		election = strconv.FormatInt(int64(electionRef), 10)
	}
	year := "null"
	if electionYear > 0 {
		year = strconv.FormatInt(electionYear, 10)
	}
	return fmt.Sprintf("%s/exploreDetails/%s/%s/%s/%s/%s",
		sosBaseURL, registryID, orNull(officeRef), orNull(districtRef), election, year)
}

// CommitteeName cleans the committee column of the candidate registry, which
// may list several committees separated by <br>.
func CommitteeName(raw string) string {
	first, _, _ := strings.Cut(raw, "<br>")
	return strings.Trim(strings.TrimSpace(first), ", ")
}

// SeasonYear takes the year from the election name, falling back to the
// election year column.
func SeasonYear(electionName string, electionYear int64) string {
	if y := yearPattern.FindString(electionName); y != "" {
		return y
	}
	if electionYear > 0 {
		return strconv.FormatInt(electionYear, 10)
	}
	return ""
}

// RegistryImporter loads the candidate and committee registry exports.
type RegistryImporter struct {
	registry *mapping.Registry
	mapper   *mapping.Mapper
	owners   OwnerStore
	entities EntityStore
	refs     ReferenceStore
	store    RegistryStore
	runner   *Runner
	extract  extract.Options
}

func NewRegistryImporter(
	registry *mapping.Registry,
	mapper *mapping.Mapper,
	owners OwnerStore,
	entities EntityStore,
	refs ReferenceStore,
	store RegistryStore,
	runner *Runner,
	opts extract.Options,
) *RegistryImporter {
	return &RegistryImporter{
		registry: registry,
		mapper:   mapper,
		owners:   owners,
		entities: entities,
		refs:     refs,
		store:    store,
		runner:   runner,
		extract:  opts,
	}
}

func (i *RegistryImporter) ImportCommittees(ctx context.Context, path string, opts RunOptions) (*Summary, error) {
	return i.run(ctx, mapping.KindCommitteeRegistry, path, opts, i.committee)
}

func (i *RegistryImporter) ImportCandidates(ctx context.Context, path string, opts RunOptions) (*Summary, error) {
	return i.run(ctx, mapping.KindCandidateRegistry, path, opts, i.candidate)
}

type registryRow func(ctx context.Context, cache *lookup.Cache, rec mapping.Record, s *Summary) error

func (i *RegistryImporter) run(ctx context.Context, kind, path string, opts RunOptions, handle registryRow) (*Summary, error) {
	t, ok := i.registry.Table(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no mapping table", ErrUnsupportedKind, kind)
	}
	return i.runner.Run(ctx, kind, opts, func(ctx context.Context, s *Summary) error {
		src, err := extract.Open(path, i.extract)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		cache := lookup.New()
		defer cache.Reset()
		return rehearse(ctx, opts.DryRun, func(ctx context.Context) error {
			return inTx(ctx, func(ctx context.Context) error {
				for {
					row, err := src.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					s.Found++
					rec, err := i.mapper.Map(row, t)
					if err != nil {
						s.skipRow(err)
						continue
					}
					if err := handle(ctx, cache, rec, s); err != nil {
						return fmt.Errorf("%s line %d: %w", kind, rec.Line, err)
					}
				}
			})
		})
	})
}

// committee links a registry committee to its stored row by user id, then by
// name, creating it when neither matches.
func (i *RegistryImporter) committee(ctx context.Context, _ *lookup.Cache, rec mapping.Record, s *Summary) error {
	name := strings.TrimSpace(rec.String("name"))
	committeeType := rec.String("committee_type")
	var userID *int64
	if v, ok := rec.Int("user_id"); ok {
		userID = &v
	}

	pacID, found, err := i.findCommittee(ctx, name, userID)
	if err != nil {
		return err
	}
	if found {
		s.Linked++
		if err := i.store.SetCommitteeType(ctx, pacID, committeeType); err != nil {
			return err
		}
	} else {
		entityID, _, err := i.entities.GetOrCreate(ctx, "pac", userID)
		if err != nil {
			return err
		}
		if pacID, err = i.store.CreatePAC(ctx, entityID, name, committeeType); err != nil {
			return err
		}
		s.Created++
	}
	if link := CommitteeLink(rec.String("registry_id")); link != "" {
		return i.store.SetCommitteeLink(ctx, pacID, link)
	}
	return nil
}

func (i *RegistryImporter) findCommittee(ctx context.Context, name string, userID *int64) (int64, bool, error) {
	if userID != nil {
		pac, err := i.owners.PACByUserID(ctx, *userID)
		if err == nil {
			return pac.ID, true, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return 0, false, err
		}
	}
	pac, err := i.owners.PACByName(ctx, name)
	if errors.Is(err, persistence.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if userID != nil && pac.UserID == nil {
		if err := i.entities.StampUserID(ctx, pac.EntityID, *userID); err != nil {
			return 0, false, err
		}
	}
	return pac.ID, true, nil
}

// candidate links one registry row to a committee, a candidate and the
// campaign joining them in the election season.
func (i *RegistryImporter) candidate(ctx context.Context, cache *lookup.Cache, rec mapping.Record, s *Summary) error {
	electionYear, _ := rec.Int("election_year")
	year := SeasonYear(rec.String("election_name"), electionYear)
	if year == "" {
		s.skip(fmt.Sprintf("%s line %d: no election year in %q", rec.Kind, rec.Line, rec.String("election_name")))
		return nil
	}
	userID, _ := rec.Int("user_id")
	fullName := strings.TrimSpace(rec.String("full_name"))
	committeeName := CommitteeName(rec.String("committee_name"))
	if committeeName == "" {
		committeeName = fullName
	}

	pacID, found, err := i.findCommittee(ctx, committeeName, &userID)
	if err != nil {
		return err
	}
	if !found {
		entityID, _, err := i.entities.GetOrCreate(ctx, "pac", &userID)
		if err != nil {
			return err
		}
		if pacID, err = i.store.CreatePAC(ctx, entityID, committeeName, "Candidate"); err != nil {
			return err
		}
	}

	candidateID, err := i.findCandidate(ctx, pacID, rec)
	if err != nil {
		return err
	}

	key, err := i.campaignKey(ctx, cache, rec, year, pacID, s)
	if err != nil {
		return err
	}
	electionRef, hasElection := rec.Values["election_ref"].(float64)
	link := CampaignLink(rec.String("registry_id"), rec.String("office_ref"), rec.String("district_ref"),
		electionRef, hasElection, electionYear)

	campaignID, _, err := i.store.FindCampaign(ctx, key)
	switch {
	case err == nil:
		s.Linked++
		if link != "" {
			return i.store.SetCampaignLink(ctx, campaignID, link)
		}
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		_, err = i.store.CreateCampaign(ctx, persistence.RegistryCampaign{
			Key:           key,
			CandidateID:   candidateID,
			CommitteeName: committeeName,
			Email:         rec.String("email"),
			SOSLink:       link,
		})
		if err != nil {
			return err
		}
		s.Created++
		return nil
	default:
		return err
	}
}

// findCandidate reuses the candidate the committee already ran for, then a
// candidate with the same email and phone, and creates one otherwise.
func (i *RegistryImporter) findCandidate(ctx context.Context, pacID int64, rec mapping.Record) (int64, error) {
	id, err := i.store.CandidateOfCommittee(ctx, pacID)
	if err == nil || !errors.Is(err, persistence.ErrNotFound) {
		return id, err
	}
	email := strings.TrimSpace(rec.String("email"))
	phone := rec.String("business_phone")
	id, err = i.store.CandidateByContact(ctx, email, nonDigits.ReplaceAllString(phone, ""))
	if err == nil || !errors.Is(err, persistence.ErrNotFound) {
		return id, err
	}
	entityID, _, err := i.entities.GetOrCreate(ctx, "candidate", nil)
	if err != nil {
		return 0, err
	}
	id, err = i.store.CreateCandidate(ctx, entityID, strings.TrimSpace(rec.String("full_name")), email, phone)
	if err != nil {
		return 0, err
	}
	logWithFields(ctx, logrus.DebugLevel, "created candidate", logrus.Fields{"candidate_id": id, "pac_id": pacID})
	return id, nil
}

func (i *RegistryImporter) campaignKey(ctx context.Context, cache *lookup.Cache, rec mapping.Record, year string, pacID int64, s *Summary) (persistence.CampaignKey, error) {
	key := persistence.CampaignKey{CommitteeID: pacID}
	var err error
	key.SeasonID, err = cache.GetOrLoad(ctx, "election_season", year, func(ctx context.Context) (int64, error) {
		return i.refs.ElectionSeason(ctx, year)
	})
	if err != nil {
		return key, err
	}

	if office := rec.String("office_name"); office != "" {
		officeType := rec.String("office_type")
		id, err := cache.GetOrLoad(ctx, "office", office+"|"+officeType, func(ctx context.Context) (int64, error) {
			var t *string
			if officeType != "" {
				t = &officeType
			}
			return i.refs.Office(ctx, office, t)
		})
		if err != nil {
			return key, err
		}
		key.OfficeID = &id

		if district := rec.String("district_name"); district != "" {
			id, err := cache.GetOrLoad(ctx, "district", district+"|"+itoa(*key.OfficeID), func(ctx context.Context) (int64, error) {
				return i.refs.District(ctx, district, *key.OfficeID)
			})
			if err != nil {
				return key, err
			}
			key.DistrictID = &id
		}
	}

	if county := rec.String("county_name"); county != "" {
		id, err := cache.GetOrLoad(ctx, "county", county, func(ctx context.Context) (int64, error) {
			return i.refs.County(ctx, county)
		})
		switch {
		case err == nil:
			key.CountyID = &id
		case errors.Is(err, persistence.ErrNotFound):
			s.gap(&filing.ReferentialGapError{Kind: rec.Kind, Parent: "county", Ref: county})
		default:
			return key, err
		}
	}

	if party := rec.String("party"); party != "" {
		id, err := cache.GetOrLoad(ctx, "political_party", party, func(ctx context.Context) (int64, error) {
			return i.refs.PoliticalParty(ctx, party)
		})
		if err != nil {
			return key, err
		}
		key.PartyID = &id
	}
	return key, nil
}
