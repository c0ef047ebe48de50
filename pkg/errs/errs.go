// Package errs declares the sentinel error taxonomy shared by the descriptor,
// collector, rule engine, and deletion ledger packages. Errors in these
// categories wrap the matching sentinel with fmt.Errorf("...: %w", ...) so
// callers can classify failures with errors.Is instead of string matching;
// other errors (for example a missing rule option or a held ledger lock) are
// plain errors that wrap no sentinel.
package errs

import "errors"

var (
	// ErrInvalidFilename is returned when an SDS filename does not split into
	// exactly seven dot-separated fields.
	ErrInvalidFilename = errors.New("invalid SDS filename")

	// ErrInvalidPattern is returned when a collector wildcard pattern does not
	// have seven dotted segments.
	ErrInvalidPattern = errors.New("invalid wildcard pattern")

	// ErrInvalidMode is returned for an unrecognized date-range filter mode.
	ErrInvalidMode = errors.New("invalid date range mode")

	// ErrConfigNotFound is returned when a rule-map or rule-sequence document
	// cannot be read from disk, when the configuration document cannot be
	// read or decoded, and when an archive root cannot be scanned.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrSchemaError is returned when a rule-map document fails schema
	// validation (missing required field or unknown key).
	ErrSchemaError = errors.New("rule map schema error")

	// ErrUnknownRule is returned when a rule sequence names a rule absent
	// from the rule map.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrUnknownFunction is returned when a rule or condition function_name
	// does not resolve in the corresponding registry.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrNotCallable is returned when a resolved registry entry is not a
	// callable handler (defensive; the registries are statically typed, but
	// kept for parity with the source contract in spec.md).
	ErrNotCallable = errors.New("registry entry not callable")

	// ErrIoError wraps a read/stat failure on a file known to exist, and any
	// failure reported by a collaborator backend (object store, catalogs,
	// grid archive, deletion ledger, lock, run audit, station inventory,
	// container runtime).
	ErrIoError = errors.New("i/o error")
)
