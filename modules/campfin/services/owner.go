package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
)

// OwnerResolver maps the upstream user id of a filing owner to its Entity.
// Candidate committees resolve to the candidate's Entity.
type OwnerResolver struct {
	owners   OwnerStore
	entities EntityStore
	cache    *lookup.Cache
}

func NewOwnerResolver(owners OwnerStore, entities EntityStore, cache *lookup.Cache) *OwnerResolver {
	return &OwnerResolver{owners: owners, entities: entities, cache: cache}
}

// Resolve returns the owner Entity of userID. committeeName is the fallback
// used for committees registered before their user id was known.
func (r *OwnerResolver) Resolve(ctx context.Context, userID int64, committeeName string) (int64, error) {
	return r.cache.GetOrLoad(ctx, "owner", strconv.FormatInt(userID, 10), func(ctx context.Context) (int64, error) {
		return r.resolve(ctx, userID, committeeName)
	})
}

func (r *OwnerResolver) resolve(ctx context.Context, userID int64, committeeName string) (int64, error) {
	pac, err := r.owners.PACByUserID(ctx, userID)
	if errors.Is(err, persistence.ErrNotFound) && committeeName != "" {
		pac, err = r.owners.PACByName(ctx, committeeName)
		if err == nil && pac.UserID == nil {
			if err := r.entities.StampUserID(ctx, pac.EntityID, userID); err != nil {
				return 0, err
			}
			logWithFields(ctx, logrus.InfoLevel, "linked committee to user id", logrus.Fields{
				"pac_id":    pac.ID,
				"user_id":   userID,
				"committee": committeeName,
			})
		}
	}
	switch {
	case err == nil:
		candidateEntity, cerr := r.owners.CandidateEntityOfCommittee(ctx, pac.ID)
		if cerr == nil {
			return candidateEntity, nil
		}
		if !errors.Is(cerr, persistence.ErrNotFound) {
			return 0, cerr
		}
		return pac.EntityID, nil
	case errors.Is(err, persistence.ErrNotFound):
		id, _, err := r.entities.GetOrCreate(ctx, "pac", &userID)
		return id, err
	default:
		return 0, err
	}
}
