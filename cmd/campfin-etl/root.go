package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmcampfin/campfin-etl/pkg/configuration"
	"github.com/nmcampfin/campfin-etl/pkg/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "campfin-etl",
		Short:         "Campaign finance export loader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newRacesCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newScheduleCmd())
	return cmd
}

func Execute() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	conf := configuration.Use()
	defer conf.Unload()

	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer cleanup()
		conf.Logger().Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
	}

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitCode(err)
	}
	return exitOK
}
