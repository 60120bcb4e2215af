package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nmcampfin/campfin-etl/modules/campfin/merge"
)

type mergeOptions struct {
	kind    string
	primary int64
	aliases []int64
}

func newMergeCmd() *cobra.Command {
	var opts mergeOptions

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Fold alias rows into a primary row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "", fmt.Sprintf("Kind to merge: %s (required)", strings.Join(merge.Kinds(), ", ")))
	cmd.Flags().Int64Var(&opts.primary, "primary", 0, "Id of the row that survives (required)")
	cmd.Flags().Int64SliceVar(&opts.aliases, "alias", nil, "Id of a row folded into the primary; repeatable")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("primary")
	_ = cmd.MarkFlagRequired("alias")
	return cmd
}

func runMerge(ctx context.Context, opts mergeOptions) error {
	k, ok := merge.Lookup(strings.TrimSpace(opts.kind))
	if !ok {
		return withCode(exitUsage, fmt.Errorf("unknown --kind %q (expected one of %s)", opts.kind, strings.Join(merge.Kinds(), ", ")))
	}
	if opts.primary <= 0 {
		return withCode(exitUsage, fmt.Errorf("--primary must be positive"))
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := merge.Merge(a.runContext(ctx), k, opts.primary, opts.aliases)
	if err != nil {
		return classify(err)
	}
	return printJSON(res)
}
