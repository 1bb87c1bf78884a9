package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/skroot/internal/tracelog"
)

// RecordErrorCode categorizes per-record problems.
type RecordErrorCode string

const (
	// ErrCodeMalformed indicates the argument string failed its sub-grammar.
	ErrCodeMalformed RecordErrorCode = "MALFORMED_RECORD"

	// ErrCodeUnknownType indicates a type name no handler is registered for.
	ErrCodeUnknownType RecordErrorCode = "UNKNOWN_TYPE"

	// ErrCodeLifecycle indicates lifecycle data that cannot be applied as-is,
	// such as an exit with no recorded start.
	ErrCodeLifecycle RecordErrorCode = "INCONSISTENT_LIFECYCLE"
)

// RecordError describes why a single record was skipped or only partially
// meaningful. It never aborts ingestion.
type RecordError struct {
	Code     RecordErrorCode
	Message  string
	TypeName string
	PID      string
	Line     int
	Args     string
	Err      error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	msg := fmt.Sprintf("%s: %s (line=%d, pid=%s, type=%q)", e.Code, e.Message, e.Line, e.PID, e.TypeName)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func newRecordError(code RecordErrorCode, rec tracelog.Record, message string) *RecordError {
	return &RecordError{
		Code:     code,
		Message:  message,
		TypeName: rec.TypeName,
		PID:      rec.PID,
		Line:     rec.Line,
		Args:     rec.Args,
	}
}

// CodeOf extracts the RecordErrorCode from err, if it is a *RecordError.
func CodeOf(err error) (RecordErrorCode, bool) {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsRecordError returns true if err is a per-record error of any kind.
func IsRecordError(err error) bool {
	_, ok := CodeOf(err)
	return ok
}

// IsMalformed returns true if err reports a malformed argument string.
func IsMalformed(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeMalformed
}

// IsUnknownType returns true if err reports an unsupported record type.
func IsUnknownType(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeUnknownType
}

// IsLifecycle returns true if err reports inconsistent lifecycle data.
func IsLifecycle(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeLifecycle
}
