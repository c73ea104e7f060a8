// Package gatewayerr defines the typed error taxonomy used across the
// gateway so that retryability and HTTP status mapping are decided by
// switching on a Kind, never by matching substrings of an error string.
package gatewayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one error class from the gateway's error taxonomy.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuthentication     Kind = "authentication"
	KindAuthorization      Kind = "authorization"
	KindUnsupportedModel   Kind = "unsupported_model"
	KindFileNotFound       Kind = "file_not_found"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindUpstream           Kind = "upstream"
	KindTimeout            Kind = "timeout"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the concrete error type carried through the gateway. Kind decides
// HTTP status and retry eligibility; Cause, when present, is the wrapped
// transport/SDK error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, gatewayerr.Kind) style comparisons against a bare
// *Error carrying only a Kind (used as a sentinel in tests).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// HTTPStatus maps a Kind to the HTTP status code the gateway reports for it.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnsupportedModel, KindFileNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream:
		return http.StatusBadGateway
	case KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func UnsupportedModel(modelID string) *Error {
	return New(KindUnsupportedModel, fmt.Sprintf("no strategy matches model id %q", modelID))
}

func FileNotFound(id string) *Error {
	return New(KindFileNotFound, fmt.Sprintf("artifact %q not found", id))
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal error", cause)
}

// Retryable reports whether an error class is eligible for the retry
// policy. Only transient transport/throttling classes are retryable; all
// others (validation, auth, unsupported-model, content-policy) are terminal.
func Retryable(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		switch gwErr.Kind {
		case KindRateLimited, KindServiceUnavailable, KindTimeout:
			return true
		default:
			return false
		}
	}
	// Unclassified errors (e.g. a raw network error from an HTTP round
	// trip before it has been wrapped) are treated as transient so a
	// dropped connection still gets retried.
	return true
}

// AsError extracts a *Error from err, or wraps err as KindInternal.
func AsError(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return Internal(err)
}
