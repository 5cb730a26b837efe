// Package qerr defines the five error kinds the pipeline can surface,
// as sentinel values suitable for errors.Is classification at the CLI boundary.
package qerr

import "errors"

var (
	// ErrPrecondition covers missing artifacts, wrong phase, empty tasks:
	// the normal "try again after the user does X" case.
	ErrPrecondition = errors.New("precondition")

	// ErrIntegrity covers checksum mismatches, unparseable JSON, schema
	// violations. The caller continues with a repaired value.
	ErrIntegrity = errors.New("integrity")

	// ErrGateFailure covers a non-zero quality-gate exit or a verifier
	// FAIL/ambiguous verdict.
	ErrGateFailure = errors.New("gate failure")

	// ErrFatalEnvironment covers inability to create the lock file, write
	// the state file, or similar OS-level failures. Never retried internally.
	ErrFatalEnvironment = errors.New("fatal environment")

	// ErrSecurityRefusal covers oversized requests, path escapes, registry
	// identity mismatches, and symlinked sibling paths.
	ErrSecurityRefusal = errors.New("security refusal")
)

// ExitCode maps an error's kind to the process exit code described in
// SPEC_FULL.md §7: 1 for any of the five classified kinds, 2 for anything
// unclassified (bootstrap failures).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, ErrPrecondition),
		errors.Is(err, ErrIntegrity),
		errors.Is(err, ErrGateFailure),
		errors.Is(err, ErrFatalEnvironment),
		errors.Is(err, ErrSecurityRefusal):
		return 1
	default:
		return 2
	}
}
