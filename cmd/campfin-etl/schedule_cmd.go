package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nmcampfin/campfin-etl/modules/campfin/dependents"
	"github.com/nmcampfin/campfin-etl/modules/campfin/services"
	"github.com/nmcampfin/campfin-etl/pkg/configuration"
	"github.com/nmcampfin/campfin-etl/pkg/constants"
	"github.com/nmcampfin/campfin-etl/pkg/metrics"
)

// scheduleConfig is the YAML document read by the schedule command.
type scheduleConfig struct {
	Mappings string        `yaml:"mappings"`
	Jobs     []scheduleJob `yaml:"jobs" validate:"required,min=1,dive"`
}

type scheduleJob struct {
	Name     string `yaml:"name" validate:"required"`
	Cron     string `yaml:"cron" validate:"required"`
	Import   string `yaml:"import" validate:"required,oneof=kind filings transactions candidates committees"`
	Kind     string `yaml:"kind" validate:"required_if=Import kind"`
	File     string `yaml:"file" validate:"required"`
	Encoding string `yaml:"encoding"`
	// MinInterval skips a firing when the kind succeeded more recently.
	MinInterval time.Duration `yaml:"min_interval"`

	TransactionType string `yaml:"transaction_type" validate:"required_if=Import transactions"`
	Year            int    `yaml:"year"`
	Quarters        []int  `yaml:"quarters" validate:"dive,min=1,max=4"`
	ReplaceYear     bool   `yaml:"replace_year"`
}

func parseScheduleConfig(r io.Reader) (*scheduleConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var conf scheduleConfig
	if err := dec.Decode(&conf); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if err := constants.Validate.Struct(&conf); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	seen := make(map[string]struct{}, len(conf.Jobs))
	for _, j := range conf.Jobs {
		if _, dup := seen[j.Name]; dup {
			return nil, fmt.Errorf("invalid schedule: duplicate job %q", j.Name)
		}
		seen[j.Name] = struct{}{}
		if _, err := cron.ParseStandard(j.Cron); err != nil {
			return nil, fmt.Errorf("invalid schedule: job %q: %w", j.Name, err)
		}
		if _, err := j.importFunc(); err != nil {
			return nil, fmt.Errorf("invalid schedule: job %q: %w", j.Name, err)
		}
	}
	return &conf, nil
}

func (j scheduleJob) sourceFlags(mappings string) sourceFlags {
	return sourceFlags{
		file:        j.File,
		encoding:    j.Encoding,
		mappings:    mappings,
		minInterval: j.MinInterval,
	}
}

// importFunc resolves the import a job runs on each firing.
func (j scheduleJob) importFunc() (importFunc, error) {
	opts := services.RunOptions{MinInterval: j.MinInterval}
	switch j.Import {
	case "kind":
		return func(ctx context.Context, im *importers) (*services.Summary, error) {
			return im.kinds.Import(ctx, j.Kind, j.File, opts)
		}, nil
	case "filings":
		return func(ctx context.Context, im *importers) (*services.Summary, error) {
			return im.filings.Import(ctx, j.File, opts)
		}, nil
	case "candidates":
		return func(ctx context.Context, im *importers) (*services.Summary, error) {
			return im.registry.ImportCandidates(ctx, j.File, opts)
		}, nil
	case "committees":
		return func(ctx context.Context, im *importers) (*services.Summary, error) {
			return im.registry.ImportCommittees(ctx, j.File, opts)
		}, nil
	case "transactions":
		class, err := dependents.ParseClass(j.TransactionType)
		if err != nil {
			return nil, err
		}
		topts := services.TransactionOptions{
			RunOptions:  opts,
			Class:       class,
			Year:        j.Year,
			Quarters:    j.Quarters,
			ReplaceYear: j.ReplaceYear,
		}
		if err := topts.Validate(); err != nil {
			return nil, err
		}
		return func(ctx context.Context, im *importers) (*services.Summary, error) {
			return im.transactions.Import(ctx, j.File, topts)
		}, nil
	}
	return nil, fmt.Errorf("unknown import %q", j.Import)
}

type scheduleOptions struct {
	config      string
	metricsAddr string
	metricsPath string
}

func newScheduleCmd() *cobra.Command {
	var opts scheduleOptions

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run imports on cron schedules until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSchedule(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.config, "config", "", "Schedule YAML (required)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-path", metrics.DefaultPath, "Metrics endpoint path")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSchedule(ctx context.Context, opts scheduleOptions) error {
	f, err := os.Open(opts.config)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("open --config: %w", err))
	}
	conf, err := parseScheduleConfig(f)
	_ = f.Close()
	if err != nil {
		return withCode(exitValidation, err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := configuration.Use().Logger()
	c := cron.New(
		cron.WithLocation(configuration.Use().ETL.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
	)
	for _, job := range conf.Jobs {
		im, err := a.importers(job.sourceFlags(conf.Mappings))
		if err != nil {
			return err
		}
		fn, err := job.importFunc()
		if err != nil {
			return withCode(exitValidation, err)
		}
		name := job.Name
		if _, err := c.AddFunc(job.Cron, func() {
			runJob(ctx, a, name, im, fn)
		}); err != nil {
			return withCode(exitValidation, fmt.Errorf("job %q: %w", name, err))
		}
	}

	errCh := make(chan error, 1)
	if strings.TrimSpace(opts.metricsAddr) != "" {
		go func() { errCh <- metrics.Serve(ctx, opts.metricsAddr, opts.metricsPath) }()
	}

	c.Start()
	logger.WithFields(logrus.Fields{"jobs": len(conf.Jobs)}).Info("scheduler started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			<-c.Stop().Done()
			return withCode(exitUsage, fmt.Errorf("metrics server: %w", err))
		}
	}
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

func runJob(ctx context.Context, a *app, name string, im *importers, fn importFunc) {
	runCtx := a.runContext(ctx)
	s, err := fn(runCtx, im)
	if s != nil {
		_ = printJSON(s)
	}
	if err != nil {
		configuration.Use().Logger().WithFields(logrus.Fields{
			"job":   name,
			"error": err,
		}).Error("scheduled import failed")
	}
}
