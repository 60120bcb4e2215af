package services

import (
	"context"
	"time"

	"github.com/nmcampfin/campfin-etl/modules/campfin/bookkeeping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/contacts"
	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/pkg/runlock"
)

type fakeOwners struct {
	byUserID   map[int64]persistence.PACRef
	byName     map[string]persistence.PACRef
	candidates map[int64]int64
	campaigns  map[string]int64
	calls      int
}

func (f *fakeOwners) PACByUserID(_ context.Context, userID int64) (persistence.PACRef, error) {
	f.calls++
	if p, ok := f.byUserID[userID]; ok {
		return p, nil
	}
	return persistence.PACRef{}, persistence.ErrNotFound
}

func (f *fakeOwners) PACByName(_ context.Context, name string) (persistence.PACRef, error) {
	if p, ok := f.byName[name]; ok {
		return p, nil
	}
	return persistence.PACRef{}, persistence.ErrNotFound
}

func (f *fakeOwners) CandidateEntityOfCommittee(_ context.Context, pacID int64) (int64, error) {
	if id, ok := f.candidates[pacID]; ok {
		return id, nil
	}
	return 0, persistence.ErrNotFound
}

func (f *fakeOwners) CampaignForFiling(_ context.Context, _ int64, year, _, _ string) (int64, error) {
	if id, ok := f.campaigns[year]; ok {
		return id, nil
	}
	return 0, persistence.ErrNotFound
}

type fakeEntities struct {
	next    int64
	byUser  map[int64]int64
	stamped map[int64]int64
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{next: 1000, byUser: map[int64]int64{}, stamped: map[int64]int64{}}
}

func (f *fakeEntities) GetOrCreate(_ context.Context, _ string, userID *int64) (int64, bool, error) {
	if userID != nil {
		if id, ok := f.byUser[*userID]; ok {
			return id, false, nil
		}
	}
	f.next++
	if userID != nil {
		f.byUser[*userID] = f.next
	}
	return f.next, true, nil
}

func (f *fakeEntities) StampUserID(_ context.Context, entityID, userID int64) error {
	f.stamped[entityID] = userID
	return nil
}

// fakeRefs hands out sequential ids per natural key and counts inserts.
type fakeRefs struct {
	ids     map[string]int64
	inserts map[string]int
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{ids: map[string]int64{}, inserts: map[string]int{}}
}

func (f *fakeRefs) id(kind, natural string) (int64, error) {
	k := kind + ":" + natural
	if id, ok := f.ids[k]; ok {
		return id, nil
	}
	f.inserts[kind]++
	id := int64(len(f.ids) + 1)
	f.ids[k] = id
	return id, nil
}

func (f *fakeRefs) FilingPeriod(_ context.Context, d string, s, e, _ *time.Time) (int64, error) {
	return f.id("filing_period", d+s.String()+e.String())
}
func (f *fakeRefs) State(_ context.Context, code string) (int64, error) { return f.id("state", code) }
func (f *fakeRefs) ContactType(_ context.Context, d string) (int64, error) {
	return f.id("contact_type", d)
}
func (f *fakeRefs) Address(_ context.Context, a contacts.Address, _ *int64) (int64, error) {
	return f.id("address", a.Fingerprint())
}
func (f *fakeRefs) Contact(_ context.Context, c contacts.Contact, _ int64, _ *int64) (int64, error) {
	return f.id("contact", c.Fingerprint())
}
func (f *fakeRefs) TransactionType(_ context.Context, d string) (int64, error) {
	return f.id("transaction_type", d)
}
func (f *fakeRefs) LoanTransactionType(_ context.Context, d string) (int64, error) {
	return f.id("loan_transaction_type", d)
}
func (f *fakeRefs) PoliticalParty(_ context.Context, n string) (int64, error) {
	return f.id("party", n)
}
func (f *fakeRefs) ElectionSeason(_ context.Context, y string) (int64, error) {
	return f.id("season", y)
}
func (f *fakeRefs) Office(_ context.Context, d string, _ *string) (int64, error) {
	return f.id("office", d)
}
func (f *fakeRefs) District(_ context.Context, n string, _ int64) (int64, error) {
	return f.id("district", n)
}
func (f *fakeRefs) County(_ context.Context, n string) (int64, error) {
	return 0, persistence.ErrNotFound
}

type fakeBooks struct {
	recent   bool
	recorded []bookkeeping.Import
}

func (f *fakeBooks) Recent(_ context.Context, kind string, now time.Time, _ time.Duration) (bool, bookkeeping.Import, error) {
	return f.recent, bookkeeping.Import{Kind: kind, LastSuccessAt: now.Add(-time.Minute)}, nil
}

func (f *fakeBooks) Record(_ context.Context, imp bookkeeping.Import) error {
	f.recorded = append(f.recorded, imp)
	return nil
}

type lockedLocker struct{}

func (lockedLocker) Acquire(context.Context, string, time.Duration) (runlock.Lock, error) {
	return nil, runlock.ErrLocked
}
