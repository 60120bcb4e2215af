package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the last successful import of every kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	imports, err := a.books.List(ctx)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("list imports: %w", err))
	}
	for _, imp := range imports {
		if err := printJSON(imp); err != nil {
			return err
		}
	}
	return nil
}
