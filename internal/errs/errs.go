// Package errs defines the error taxonomy shared by the ingestion pipeline,
// the catalog store and the outer surfaces.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react to it
// without inspecting message text.
type Kind string

const (
	// InvalidInput means the caller supplied something malformed, such as
	// a share URL that does not parse. Correctable by the user.
	InvalidInput Kind = "invalid_input"
	// FetchError covers network failures, timeouts and HTTP statuses >= 400.
	// It is the only retryable kind.
	FetchError Kind = "fetch_error"
	// ResolutionNotFound means a page was fetched but no feed reference was
	// found in it: the share link format is not supported.
	ResolutionNotFound Kind = "resolution_not_found"
	// ParseError means the document is not syndication markup at all.
	ParseError Kind = "parse_error"
	// NotFound means a referenced show or episode is not in the catalog.
	NotFound Kind = "not_found"
	// Internal is anything else (database failures and the like).
	Internal Kind = "internal"
)

// Error carries a taxonomy kind, a human-readable detail and, for fetch
// failures, the HTTP status that caused it.
type Error struct {
	Kind   Kind
	Detail string
	Status int // HTTP status for FetchError; 0 when the request never completed
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same call could succeed.
func (e *Error) Retryable() bool { return e.Kind == FetchError }

// New returns an error of the given kind with a formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and detail to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// HTTPStatus returns a FetchError recording the status code of a response.
func HTTPStatus(url string, status int) *Error {
	return &Error{Kind: FetchError, Detail: fmt.Sprintf("%s returned status %d", url, status), Status: status}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal
// when the chain has none. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status attached to a FetchError, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
