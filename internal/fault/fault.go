package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for API mapping and caller branching.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindTimeout
	KindUnavailable
)

// Error is a classified error. The zero Kind is an internal error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidArgumentf reports a request the caller can fix.
func InvalidArgumentf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf reports an absent spot or session.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf reports a business-rule violation such as a duplicate active
// session or a spot at capacity.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Timeoutf reports an unresponsive upstream store.
func Timeoutf(format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf(format, args...)}
}

// Unavailablef reports a degraded optional backend. Callers are expected to
// log and absorb these rather than surface them.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Context deadline errors become
// KindTimeout regardless of the requested kind.
func Wrap(kind Kind, err error, msg string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsNotFound reports whether err is classified KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is classified KindConflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// HTTPStatus maps an error to the status code of the API surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
