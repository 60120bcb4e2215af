package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nmcampfin/campfin-etl/modules/campfin/dependents"
	"github.com/nmcampfin/campfin-etl/modules/campfin/services"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a campaign finance export",
	}
	cmd.AddCommand(newImportKindCmd())
	cmd.AddCommand(newImportFilingsCmd())
	cmd.AddCommand(newImportTransactionsCmd())
	cmd.AddCommand(newImportRegistryCmd("candidates", "Load the candidate registry export"))
	cmd.AddCommand(newImportRegistryCmd("committees", "Load the committee registry export"))
	return cmd
}

func bindSourceFlags(cmd *cobra.Command, flags *sourceFlags) {
	cmd.Flags().StringVar(&flags.file, "file", "", "Export file: csv, xlsx, zip or gz (required)")
	cmd.Flags().StringVar(&flags.encoding, "encoding", "", "Source encoding of delimited files (default utf-8)")
	cmd.Flags().StringVar(&flags.mappings, "mappings", "", "YAML file overriding the built-in mapping tables")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Compute the changes without writing them")
	cmd.Flags().DurationVar(&flags.minInterval, "min-interval", 0, "Skip when the kind succeeded within this interval")
	_ = cmd.MarkFlagRequired("file")
}

func newImportKindCmd() *cobra.Command {
	var flags sourceFlags
	var kind string

	cmd := &cobra.Command{
		Use:   "kind",
		Short: "Load a reference or registry kind through the change-set pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), flags, func(ctx context.Context, im *importers) (*services.Summary, error) {
				return im.kinds.Import(ctx, strings.TrimSpace(kind), flags.file, flags.runOptions())
			})
		},
	}
	bindSourceFlags(cmd, &flags)
	cmd.Flags().StringVar(&kind, "kind", "", "Kind to load (required)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newImportFilingsCmd() *cobra.Command {
	var flags sourceFlags

	cmd := &cobra.Command{
		Use:   "filings",
		Short: "Load the filed reports export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), flags, func(ctx context.Context, im *importers) (*services.Summary, error) {
				return im.filings.Import(ctx, flags.file, flags.runOptions())
			})
		},
	}
	bindSourceFlags(cmd, &flags)
	return cmd
}

func newImportTransactionsCmd() *cobra.Command {
	var flags sourceFlags
	var opts services.TransactionOptions
	var class string

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Load a contributions (CON) or expenditures (EXP) export",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := dependents.ParseClass(class)
			if err != nil {
				return withCode(exitUsage, err)
			}
			opts.Class = c
			opts.RunOptions = flags.runOptions()
			if err := opts.Validate(); err != nil {
				return withCode(exitUsage, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), flags, func(ctx context.Context, im *importers) (*services.Summary, error) {
				return im.transactions.Import(ctx, flags.file, opts)
			})
		},
	}
	bindSourceFlags(cmd, &flags)
	cmd.Flags().StringVar(&class, "transaction-type", "", "CON or EXP (required)")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "Only load filings whose period starts in this year")
	cmd.Flags().IntSliceVar(&opts.Quarters, "quarters", nil, "Only load filings whose period starts in these quarters, e.g. 1,2")
	cmd.Flags().BoolVar(&opts.ReplaceYear, "replace-year", false, "Delete the owners' transactions of --year before loading")
	_ = cmd.MarkFlagRequired("transaction-type")
	return cmd
}

func newImportRegistryCmd(name, short string) *cobra.Command {
	var flags sourceFlags

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), flags, func(ctx context.Context, im *importers) (*services.Summary, error) {
				if name == "candidates" {
					return im.registry.ImportCandidates(ctx, flags.file, flags.runOptions())
				}
				return im.registry.ImportCommittees(ctx, flags.file, flags.runOptions())
			})
		},
	}
	bindSourceFlags(cmd, &flags)
	return cmd
}

type importFunc func(ctx context.Context, im *importers) (*services.Summary, error)

func runImport(ctx context.Context, flags sourceFlags, fn importFunc) error {
	if strings.TrimSpace(flags.file) == "" {
		return withCode(exitUsage, fmt.Errorf("--file is required"))
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	im, err := a.importers(flags)
	if err != nil {
		return err
	}
	s, err := fn(a.runContext(ctx), im)
	return reportSummary(s, err)
}

// out receives the JSON lines every command prints.
var out io.Writer = os.Stdout

// printJSON writes v to out as one JSON line.
func printJSON(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	if _, err := out.Write(append(line, '\n')); err != nil {
		return withCode(exitUsage, fmt.Errorf("write output: %w", err))
	}
	return nil
}

// reportSummary prints the summary line of a run, when there is one, and
// returns the error carrying the run's exit code.
func reportSummary(s *services.Summary, err error) error {
	if s != nil {
		if werr := printJSON(s); werr != nil {
			return werr
		}
	}
	if err != nil {
		return classify(err)
	}
	if code := summaryCode(s); code != exitOK {
		return withCode(code, fmt.Errorf("%s: %s", s.Kind, s.Status))
	}
	return nil
}
