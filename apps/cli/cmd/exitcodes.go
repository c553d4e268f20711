package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitmux/packages/mux"
)

// Exit codes for hitmux CLI
const (
	// ExitSuccess indicates every batch succeeded
	ExitSuccess = 0

	// ExitBatchFailure indicates a batch failed or a response did not match its schema
	ExitBatchFailure = 1

	// ExitParseError indicates a batch file could not be parsed
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the transport stopped making progress
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// ExitError carries the process exit code of a failed command. Silent
// errors were already reported by the formatter.
type ExitError struct {
	Code   int
	Err    error
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// exitCode maps an error to an exit code: explicit ExitErrors first, then
// the mux error types.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var cfgErr *mux.ConfigurationError
	var fatal *mux.FatalError
	var batchErr *mux.BatchError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &fatal):
		return ExitNetworkError
	case errors.As(err, &batchErr):
		return ExitBatchFailure
	}
	return ExitUsageError
}
