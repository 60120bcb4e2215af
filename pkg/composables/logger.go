package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nmcampfin/campfin-etl/pkg/constants"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger stored in ctx, or nil.
func UseLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return nil
	}
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, constants.RunIDKey, runID)
}

func UseRunID(ctx context.Context) string {
	v, _ := ctx.Value(constants.RunIDKey).(string)
	return v
}
