package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nmcampfin/campfin-etl/modules/campfin/infrastructure/persistence"
	"github.com/nmcampfin/campfin-etl/modules/campfin/races"
)

func newRacesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "races",
		Short: "Maintain races derived from campaigns",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Replace every race from the current campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRacesRebuild(cmd.Context())
		},
	})
	return cmd
}

func runRacesRebuild(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := races.NewRebuilder(persistence.NewRaceRepository()).Rebuild(a.runContext(ctx))
	if err != nil {
		return withCode(exitDBWrite, err)
	}
	return printJSON(res)
}
