package main

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nmcampfin/campfin-etl/modules/campfin/extract"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
	"github.com/nmcampfin/campfin-etl/modules/campfin/merge"
	"github.com/nmcampfin/campfin-etl/modules/campfin/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
	exitConflict   = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classify attaches the exit code matching the error's kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return err
	}
	var malformed *extract.MalformedSourceError
	var mappingErr *mapping.FieldMappingError
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &malformed), errors.As(err, &mappingErr):
		return withCode(exitValidation, err)
	case isUsage(err):
		return withCode(exitUsage, err)
	case errors.As(err, &pgErr):
		return withCode(exitDBWrite, err)
	default:
		return withCode(exitDB, err)
	}
}

// usageErrors are failures of the invocation rather than of the data.
var usageErrors = []error{
	services.ErrUnsupportedKind,
	services.ErrReplaceYearWithoutYear,
	merge.ErrNoAliases,
	merge.ErrPrimaryIsAlias,
}

func isUsage(err error) bool {
	for _, target := range usageErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// summaryCode maps a finished run onto the process exit code.
func summaryCode(s *services.Summary) int {
	if s == nil {
		return exitOK
	}
	switch s.Status {
	case services.StatusConflict:
		return exitConflict
	case services.StatusFailed:
		return exitDB
	default:
		return exitOK
	}
}
