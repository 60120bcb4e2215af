package services

import (
	"context"
	"errors"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

var errRollback = errors.New("dry run rollback")

// inTx joins the transaction already in ctx or starts one.
func inTx(ctx context.Context, fn func(context.Context) error) error {
	if composables.InExplicitTx(ctx) {
		return fn(ctx)
	}
	return composables.InTx(ctx, fn)
}

// rehearse runs fn inside one transaction that is always rolled back when
// dryRun is set, so a dry run reports real outcomes without writing.
func rehearse(ctx context.Context, dryRun bool, fn func(context.Context) error) error {
	if !dryRun {
		return fn(ctx)
	}
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		if err := fn(txCtx); err != nil {
			return err
		}
		return errRollback
	})
	if errors.Is(err, errRollback) {
		return nil
	}
	return err
}
