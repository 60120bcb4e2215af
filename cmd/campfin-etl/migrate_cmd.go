package main

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/nmcampfin/campfin-etl/migrations"
	"github.com/nmcampfin/campfin-etl/pkg/configuration"
)

type migrationLine struct {
	Version   int64  `json:"version"`
	Path      string `json:"path"`
	Direction string `json:"direction,omitempty"`
	State     string `json:"state,omitempty"`
	AppliedAt string `json:"applied_at,omitempty"`
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Apply, roll back or list schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), args[0])
		},
	}
}

func runMigrate(ctx context.Context, direction string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := migrations.NewProvider(a.db.DB, configuration.Use().MigrationsDir)
	if err != nil {
		return withCode(exitUsage, err)
	}

	switch direction {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return withCode(exitDBWrite, fmt.Errorf("migrate up: %w", err))
		}
		for _, r := range results {
			if err := printJSON(resultLine(r)); err != nil {
				return err
			}
		}
	case "down":
		r, err := provider.Down(ctx)
		if err != nil {
			return withCode(exitDBWrite, fmt.Errorf("migrate down: %w", err))
		}
		return printJSON(resultLine(r))
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return withCode(exitDB, fmt.Errorf("migrate status: %w", err))
		}
		for _, s := range statuses {
			line := migrationLine{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)}
			if !s.AppliedAt.IsZero() {
				line.AppliedAt = s.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
			}
			if err := printJSON(line); err != nil {
				return err
			}
		}
	default:
		return withCode(exitUsage, fmt.Errorf("unknown migrate direction %q", direction))
	}
	return nil
}

func resultLine(r *goose.MigrationResult) migrationLine {
	if r == nil || r.Source == nil {
		return migrationLine{}
	}
	return migrationLine{Version: r.Source.Version, Path: r.Source.Path, Direction: r.Direction}
}
