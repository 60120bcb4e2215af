package services

import (
	"context"
	"time"

	"github.com/nmcampfin/campfin-etl/modules/campfin/bookkeeping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/changeset"
	"github.com/nmcampfin/campfin-etl/modules/campfin/contacts"
	"github.com/nmcampfin/campfin-etl/modules/campfin/dependents"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

type SnapshotLoader interface {
	Load(ctx context.Context, t *mapping.Table, keys []string) (map[string]changeset.Snapshot, error)
}

type EntityStore interface {
	GetOrCreate(ctx context.Context, kind string, userID *int64) (int64, bool, error)
	StampUserID(ctx context.Context, entityID, userID int64) error
}

type OwnerStore interface {
	PACByUserID(ctx context.Context, userID int64) (persistence.PACRef, error)
	PACByName(ctx context.Context, name string) (persistence.PACRef, error)
	CandidateEntityOfCommittee(ctx context.Context, pacID int64) (int64, error)
	CampaignForFiling(ctx context.Context, entityID int64, year, office, district string) (int64, error)
}

type ReferenceStore interface {
	FilingPeriod(ctx context.Context, description string, start, end, due *time.Time) (int64, error)
	State(ctx context.Context, postalCode string) (int64, error)
	ContactType(ctx context.Context, description string) (int64, error)
	Address(ctx context.Context, a contacts.Address, stateID *int64) (int64, error)
	Contact(ctx context.Context, c contacts.Contact, typeID int64, addressID *int64) (int64, error)
	TransactionType(ctx context.Context, description string) (int64, error)
	LoanTransactionType(ctx context.Context, description string) (int64, error)
	PoliticalParty(ctx context.Context, name string) (int64, error)
	ElectionSeason(ctx context.Context, year string) (int64, error)
	Office(ctx context.Context, description string, officeType *string) (int64, error)
	District(ctx context.Context, name string, officeID int64) (int64, error)
	County(ctx context.Context, name string) (int64, error)
}

type DependentStore interface {
	Keys(ctx context.Context, filingID int64, class dependents.Class, year int) (map[string]persistence.DependentRef, error)
	Insert(ctx context.Context, filingID int64, d persistence.ResolvedDependent, paymentTypeID int64) (bool, error)
	Delete(ctx context.Context, refs []persistence.DependentRef) (int, error)
	DeleteYear(ctx context.Context, entityID int64, class dependents.Class, year int) ([]int64, int, error)
}

type RegistryStore interface {
	CreatePAC(ctx context.Context, entityID int64, name, committeeType string) (int64, error)
	SetCommitteeType(ctx context.Context, pacID int64, committeeType string) error
	SetCommitteeLink(ctx context.Context, pacID int64, link string) error
	CandidateOfCommittee(ctx context.Context, pacID int64) (int64, error)
	CandidateByContact(ctx context.Context, email, phoneDigits string) (int64, error)
	CreateCandidate(ctx context.Context, entityID int64, fullName, email, phone string) (int64, error)
	FindCampaign(ctx context.Context, k persistence.CampaignKey) (int64, *int64, error)
	CreateCampaign(ctx context.Context, c persistence.RegistryCampaign) (int64, error)
	SetCampaignLink(ctx context.Context, campaignID int64, link string) error
}

// Bookkeeper records successful imports. Nil disables bookkeeping.
type Bookkeeper interface {
	Recent(ctx context.Context, kind string, now time.Time, minInterval time.Duration) (bool, bookkeeping.Import, error)
	Record(ctx context.Context, imp bookkeeping.Import) error
}
