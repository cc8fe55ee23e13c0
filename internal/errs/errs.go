// Package errs defines the error kinds used throughout the harvest,
// normalization and search core (see spec §7).
//
// Call sites distinguish kinds with errors.As, not string matching, so
// wrapping with fmt.Errorf("...: %w", err) is always safe.
package errs

import "fmt"

// ConfigError is fatal at startup: malformed TOML, duplicate source names,
// a missing required environment variable.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Reason }

func Config(format string, args ...interface{}) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a single failed HTTP attempt. The retry loop in
// internal/httpclient is the only place that constructs these; everywhere
// else sees the error surfaced after retries are exhausted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport error during " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// BatchError covers a whole page/batch failing: transport exhaustion,
// malformed API payload. The caller counts it as batch_size failures and
// continues with the next batch.
type BatchError struct {
	Source string
	Err    error
}

func (e *BatchError) Error() string { return "batch error in source " + e.Source + ": " + e.Err.Error() }
func (e *BatchError) Unwrap() error { return e.Err }

func Batch(source string, err error) error {
	if err == nil {
		return nil
	}
	return &BatchError{Source: source, Err: err}
}

// RecordError covers a single record failing to translate or write: a
// missing required field, an invalid date, an id collision. Counted as one
// failure; the rest of the batch continues.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string { return "record " + e.ID + ": " + e.Err.Error() }
func (e *RecordError) Unwrap() error { return e.Err }

func Record(id string, err error) error {
	if err == nil {
		return nil
	}
	return &RecordError{ID: id, Err: err}
}

// StorageError is fatal to the current run: directory creation, rename,
// index commit failures leave the prior snapshot intact.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage error during " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// BadRequestError is a client-facing rejection of a malformed request
// (spec.md §7: "surfaced as 400 with a literal message"). Reason is shown
// to the caller verbatim, so it must never embed internal detail.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return e.Reason }

func BadRequest(format string, args ...interface{}) error {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}

// InternalError wraps any other server-facing failure (spec.md §7:
// "surfaced as 500 with a stringified error").
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

func Internal(err error) error {
	if err == nil {
		return nil
	}
	return &InternalError{Err: err}
}
