// Package races derives races from campaigns: every campaign for the same
// seat in the same election season runs in one race.
package races

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

type Campaign struct {
	ID         int64
	SeasonID   *int64
	OfficeID   *int64
	DistrictID *int64
	DivisionID *int64
	CountyID   *int64
	OfficeType string
}

// Key is a seat in a season. Zero ids stand for "none".
type Key struct {
	SeasonID   int64
	OfficeID   int64
	DistrictID int64
	DivisionID int64
	CountyID   int64
	OfficeType string
}

type Race struct {
	Key       Key
	Campaigns []int64
}

type Store interface {
	Campaigns(ctx context.Context) ([]Campaign, error)
	// Replace drops every stored race and writes races instead.
	Replace(ctx context.Context, races []Race) error
}

type Result struct {
	Races     int `json:"races"`
	Campaigns int `json:"campaigns"`
	Skipped   int `json:"skipped"`
}

// Group buckets campaigns into races. Campaigns without a season or an
// office cannot be placed and are returned as skipped.
func Group(campaigns []Campaign) ([]Race, []int64) {
	byKey := make(map[Key][]int64)
	var skipped []int64
	for _, c := range campaigns {
		if c.SeasonID == nil || c.OfficeID == nil {
			skipped = append(skipped, c.ID)
			continue
		}
		k := Key{
			SeasonID:   *c.SeasonID,
			OfficeID:   *c.OfficeID,
			DistrictID: deref(c.DistrictID),
			DivisionID: deref(c.DivisionID),
			CountyID:   deref(c.CountyID),
			OfficeType: c.OfficeType,
		}
		byKey[k] = append(byKey[k], c.ID)
	}

	out := make([]Race, 0, len(byKey))
	for k, ids := range byKey {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, Race{Key: k, Campaigns: ids})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key, out[j].Key) })
	return out, skipped
}

func less(a, b Key) bool {
	switch {
	case a.SeasonID != b.SeasonID:
		return a.SeasonID < b.SeasonID
	case a.OfficeID != b.OfficeID:
		return a.OfficeID < b.OfficeID
	case a.DistrictID != b.DistrictID:
		return a.DistrictID < b.DistrictID
	case a.DivisionID != b.DivisionID:
		return a.DivisionID < b.DivisionID
	case a.CountyID != b.CountyID:
		return a.CountyID < b.CountyID
	}
	return a.OfficeType < b.OfficeType
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

type Rebuilder struct {
	store Store
}

func NewRebuilder(store Store) *Rebuilder {
	return &Rebuilder{store: store}
}

// Rebuild replaces all races from the current campaigns in one transaction.
func (b *Rebuilder) Rebuild(ctx context.Context) (Result, error) {
	var res Result
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		campaigns, err := b.store.Campaigns(txCtx)
		if err != nil {
			return errors.Wrap(err, "load campaigns")
		}
		grouped, skipped := Group(campaigns)
		if err := b.store.Replace(txCtx, grouped); err != nil {
			return errors.Wrap(err, "replace races")
		}
		res.Races = len(grouped)
		res.Campaigns = len(campaigns) - len(skipped)
		res.Skipped = len(skipped)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if log := composables.UseLogger(ctx); log != nil {
		log.WithFields(logrus.Fields{
			"races":     res.Races,
			"campaigns": res.Campaigns,
			"skipped":   res.Skipped,
		}).Info("races rebuilt")
	}
	return res, nil
}
