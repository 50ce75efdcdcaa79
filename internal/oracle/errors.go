package oracle

import (
	"errors"
	"fmt"
)

// Error kinds. "unavailable" covers transport failures, timeouts and non-200
// responses; "malformed" covers responses that came back but could not be
// decoded into the expected result shape. Callers treat both as recoverable.
const (
	KindUnavailable = "unavailable"
	KindMalformed   = "malformed"
)

// Error is the typed failure returned by every Oracle call.
type Error struct {
	Kind string // KindUnavailable or KindMalformed
	Op   string // "canonicalize", "generate"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is an Oracle error caused by an
// undecodable response.
func IsMalformed(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindMalformed
}

// IsUnavailable reports whether err is an Oracle transport-level failure.
func IsUnavailable(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindUnavailable
}
