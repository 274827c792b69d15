// Package apperrors defines the sentinel error kinds used at every
// component boundary in Osservatorio. Public entry points never let an
// internal error unwind the caller's goroutine: they catch it, classify
// it against one of these sentinels with errors.Is, and convert it to a
// result value (a bool, an optional value, or a {success, error} struct).
package apperrors

import "errors"

var (
	// ErrValidation marks a caller-supplied argument that failed a
	// precondition (empty dataset_id, invalid priority, empty keyword
	// set, ...). No store mutation happens; the caller gets false/nil.
	ErrValidation = errors.New("validation error")

	// ErrUpstream marks a transient failure talking to the SDMX or
	// PowerBI upstream (timeout, connection reset, non-2xx). Retryable.
	ErrUpstream = errors.New("upstream error")

	// ErrMalformedUpstream marks a non-empty upstream response from which
	// no observation could be parsed. The ingestion pipeline retries it
	// like any other attempt failure. XML that fails to parse does not
	// raise it: the SDMX parser turns that into a sentinel error
	// observation instead.
	ErrMalformedUpstream = errors.New("malformed upstream response")

	// ErrStorage marks a failure in the metadata or analytics store
	// (constraint violation, disk full, schema drift). The triggering
	// transaction is rolled back before this is returned.
	ErrStorage = errors.New("storage error")

	// ErrAuth marks a failed credential check (not found, expired,
	// hash mismatch, inactive).
	ErrAuth = errors.New("authorization error")

	// ErrNotFound marks a lookup that found no matching row.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness or concurrency conflict.
	ErrConflict = errors.New("conflict")
)

// Wrap annotates err with msg while preserving errors.Is matching against
// the given sentinel kind.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: kind, msg: msg, err: err}
}

type wrapped struct {
	kind error
	msg  string
	err  error
}

func (w *wrapped) Error() string {
	if w.msg == "" {
		return w.err.Error()
	}
	return w.msg + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() error { return w.err }

func (w *wrapped) Is(target error) bool {
	return target == w.kind
}
