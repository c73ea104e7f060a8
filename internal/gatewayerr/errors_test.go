package gatewayerr

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusUnprocessableEntity},
		{KindAuthentication, http.StatusUnauthorized},
		{KindAuthorization, http.StatusForbidden},
		{KindUnsupportedModel, http.StatusNotFound},
		{KindFileNotFound, http.StatusNotFound},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindServiceUnavailable, http.StatusServiceUnavailable},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindUpstream, http.StatusBadGateway},
		{KindCancelled, 499},
		{KindInternal, http.StatusInternalServerError},
		{Kind("something_unmapped"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "boom")
			if got := err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestRetryableClassification checks that non-retryable error
// classes yield zero retries. Only throttling/transient-transport classes
// are eligible; everything else, including unclassified states, must be
// terminal or transient per the table below.
func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindRateLimited, true},
		{KindServiceUnavailable, true},
		{KindTimeout, true},
		{KindValidation, false},
		{KindAuthentication, false},
		{KindAuthorization, false},
		{KindUnsupportedModel, false},
		{KindFileNotFound, false},
		{KindUpstream, false},
		{KindCancelled, false},
		{KindInternal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "boom")
			if got := Retryable(err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRetryableUnclassifiedErrorIsTransient(t *testing.T) {
	plain := errors.New("connection reset by peer")
	if !Retryable(plain) {
		t.Error("an unclassified raw error should be treated as transient and retryable")
	}
}

func TestErrorIsSentinelComparison(t *testing.T) {
	err := Wrap(KindRateLimited, "too many requests", errors.New("429 from upstream"))
	if !errors.Is(err, New(KindRateLimited, "")) {
		t.Error("errors.Is should match on Kind alone, ignoring Message/Cause")
	}
	if errors.Is(err, New(KindTimeout, "")) {
		t.Error("errors.Is should not match a different Kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindUpstream, "provider call failed", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through Unwrap to the wrapped cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap() should return the original cause")
	}
}

func TestAsErrorPassesThroughGatewayError(t *testing.T) {
	original := New(KindValidation, "bad field")
	got := AsError(original)
	if got != original {
		t.Error("AsError should return the same *Error instance unchanged")
	}
}

func TestAsErrorWrapsPlainError(t *testing.T) {
	plain := errors.New("unexpected EOF")
	got := AsError(plain)
	if got.Kind != KindInternal {
		t.Errorf("Kind = %v, want %v", got.Kind, KindInternal)
	}
	if !errors.Is(got, plain) {
		t.Error("wrapped error should still unwrap to the original cause")
	}
}

func TestUnsupportedModelMessageIncludesID(t *testing.T) {
	err := UnsupportedModel("mystery-model-v9")
	if err.Kind != KindUnsupportedModel {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupportedModel)
	}
	if !strings.Contains(err.Message, "mystery-model-v9") {
		t.Errorf("message %q should mention the model id", err.Message)
	}
}

func TestErrorStringIncludesCauseWhenPresent(t *testing.T) {
	withCause := Wrap(KindUpstream, "call failed", errors.New("timeout"))
	withoutCause := New(KindUpstream, "call failed")
	if withCause.Error() == withoutCause.Error() {
		t.Error("Error() should differ depending on whether a Cause is present")
	}
}
