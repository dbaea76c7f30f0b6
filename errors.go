// Sentinel errors for the suivi engine: invalid input, persistence failure,
// fetch failure.
package suivi

import "errors"

// ErrInvalidInput is returned when a requested interval or filter fails
// validation, before any I/O happens.
var ErrInvalidInput = errors.New("suivi: invalid input")

// ErrPersistence is returned when a durable write to the record store or
// the coverage manifest fails. Fatal to the current commit.
var ErrPersistence = errors.New("suivi: persistence failure")

// ErrFetch wraps a network collaborator failure. The affected gap stays
// uncovered and is re-reported as missing on the next call.
var ErrFetch = errors.New("suivi: fetch failure")

// ErrParse wraps an unparseable fetch payload. Individual malformed records
// inside a parseable payload are skipped by the store instead.
var ErrParse = errors.New("suivi: parse failure")

// ErrSchema wraps an annotation write against a column that does not exist.
// Reported per record, non-fatal to an annotation batch.
var ErrSchema = errors.New("suivi: schema mismatch")
