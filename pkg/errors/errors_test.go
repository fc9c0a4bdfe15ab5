package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidSpec, "invalid match spec: %s", "python >>= 3")

	if err.Code != ErrCodeInvalidSpec {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidSpec)
	}
	if err.Message != "invalid match spec: python >>= 3" {
		t.Errorf("Message = %q", err.Message)
	}

	want := "INVALID_SPEC: invalid match spec: python >>= 3"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeNetwork, cause, "fetching noarch repodata")

	if err.Code != ErrCodeNetwork {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNetwork)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should expose the cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeInvalidPolicy, "unknown anchor"),
			code:     ErrCodeInvalidPolicy,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeInvalidPolicy, "unknown anchor"),
			code:     ErrCodeNetwork,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeNonConvergence, New(ErrCodeInternal, "inner"), "closure aborted"),
			code:     ErrCodeNonConvergence,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidRepodata, "missing packages map"),
			expected: ErrCodeInvalidRepodata,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	coded := New(ErrCodeChannelNotFound, "channel conda-forge has no subdir linux-64")
	if got := UserMessage(coded); got != "channel conda-forge has no subdir linux-64" {
		t.Errorf("UserMessage() = %q, want message without code prefix", got)
	}

	plain := errors.New("plain error")
	if got := UserMessage(plain); got != "plain error" {
		t.Errorf("UserMessage() = %q, want %q", got, "plain error")
	}
}

func TestRateLimitedError(t *testing.T) {
	withRetry := &RateLimitedError{RetryAfter: 60}
	if withRetry.Error() != "rate limited: retry after 60 seconds" {
		t.Errorf("Error() = %q", withRetry.Error())
	}

	bare := &RateLimitedError{}
	if bare.Error() != "rate limited" {
		t.Errorf("Error() = %q", bare.Error())
	}
	if bare.Code() != ErrCodeRateLimited {
		t.Errorf("Code() = %v, want %v", bare.Code(), ErrCodeRateLimited)
	}
}
