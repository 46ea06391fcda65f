package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes for categorizing errors
const (
	ErrAuth    = "AUTH"
	ErrFetch   = "FETCH"
	ErrCacheIO = "CACHE_IO"
	ErrConfig  = "CONFIG"
	ErrInput   = "INPUT"
)

// FetchKind narrows down why a remote fetch failed.
type FetchKind string

const (
	KindNetwork   FetchKind = "network"
	KindRateLimit FetchKind = "rate_limit"
	KindSchema    FetchKind = "schema"
	KindUpstream  FetchKind = "upstream"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
type Error struct {
	Code       string
	Kind       FetchKind
	Message    string
	Suggestion string
	RetryAfter time.Duration
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Auth reports rejected credentials or an expired upstream session.
func Auth(message string, cause error) *Error {
	return &Error{
		Code:       ErrAuth,
		Message:    message,
		Suggestion: "Check your Garmin Connect username and password, then log in again",
		Cause:      cause,
	}
}

// Fetch reports a failed remote data request.
func Fetch(kind FetchKind, message string, cause error) *Error {
	e := &Error{
		Code:    ErrFetch,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
	switch kind {
	case KindNetwork:
		e.Suggestion = "Check your network connection and that the Garmin bridge is reachable"
	case KindRateLimit:
		e.Suggestion = "Garmin Connect is throttling requests; wait a few minutes before retrying"
	case KindSchema:
		e.Suggestion = "The upstream response format changed; the client may need updating"
	default:
		e.Suggestion = "Try again later"
	}
	return e
}

// RateLimited is a rate-limit FetchError carrying the server's Retry-After hint.
func RateLimited(message string, retryAfter time.Duration) *Error {
	e := Fetch(KindRateLimit, message, nil)
	e.RetryAfter = retryAfter
	if retryAfter > 0 {
		e.Suggestion = fmt.Sprintf("Garmin Connect is throttling requests; retry in %s", retryAfter.Round(time.Second))
	}
	return e
}

// CacheIO reports a failed read or write of the local cache.
func CacheIO(message string, cause error) *Error {
	return &Error{
		Code:       ErrCacheIO,
		Message:    message,
		Suggestion: "Check free disk space and permissions on the data directory",
		Cause:      cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Kind != "" {
		b.WriteString(fmt.Sprintf(" (%s)", e.Kind))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage is the text shown in the dashboard: what failed and how to fix it.
func (e *Error) UserMessage() string {
	if e.Suggestion == "" {
		return e.Message
	}
	return e.Message + ". " + e.Suggestion + "."
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsKind checks if an error is a FetchError of the given kind.
func IsKind(err error, kind FetchKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrFetch && e.Kind == kind
	}
	return false
}

// As is errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
