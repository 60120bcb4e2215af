package services

import (
	"context"
	"strconv"

	"github.com/nmcampfin/campfin-etl/modules/campfin/contacts"
	"github.com/nmcampfin/campfin-etl/modules/campfin/lookup"
)

const defaultContactType = "Individual"

// contactResolver turns a party into a stored contact, deduplicated by
// fingerprint and cached for the batch.
type contactResolver struct {
	refs  ReferenceStore
	cache *lookup.Cache
}

// resolve returns nil for anonymous parties.
func (r *contactResolver) resolve(ctx context.Context, c contacts.Contact) (*int64, error) {
	if c.FullName == "" && c.CompanyName == "" {
		return nil, nil
	}
	id, err := r.cache.GetOrLoad(ctx, "contact", c.Fingerprint(), func(ctx context.Context) (int64, error) {
		typ := c.ContactType
		if typ == "" {
			typ = defaultContactType
		}
		typeID, err := r.cache.GetOrLoad(ctx, "contact_type", typ, func(ctx context.Context) (int64, error) {
			return r.refs.ContactType(ctx, typ)
		})
		if err != nil {
			return 0, err
		}
		addressID, err := r.address(ctx, c.Address)
		if err != nil {
			return 0, err
		}
		return r.refs.Contact(ctx, c, typeID, addressID)
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *contactResolver) address(ctx context.Context, a contacts.Address) (*int64, error) {
	if a.Empty() {
		return nil, nil
	}
	var stateID *int64
	if a.State != "" {
		id, err := r.cache.GetOrLoad(ctx, "state", a.State, func(ctx context.Context) (int64, error) {
			return r.refs.State(ctx, a.State)
		})
		if err != nil {
			return nil, err
		}
		stateID = &id
	}
	id, err := r.cache.GetOrLoad(ctx, "address", a.Fingerprint(), func(ctx context.Context) (int64, error) {
		return r.refs.Address(ctx, a, stateID)
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *contactResolver) transactionType(ctx context.Context, desc string) (int64, error) {
	return r.cache.GetOrLoad(ctx, "transaction_type", desc, func(ctx context.Context) (int64, error) {
		return r.refs.TransactionType(ctx, desc)
	})
}

func (r *contactResolver) loanTransactionType(ctx context.Context, desc string) (int64, error) {
	return r.cache.GetOrLoad(ctx, "loan_transaction_type", desc, func(ctx context.Context) (int64, error) {
		return r.refs.LoanTransactionType(ctx, desc)
	})
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
