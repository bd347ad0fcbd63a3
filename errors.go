package podhub

import (
	"fmt"

	"github.com/matthewjhunter/podhub/internal/errs"
)

// ErrorKind classifies engine errors. See KindOf.
type ErrorKind = errs.Kind

const (
	ErrInvalidInput       = errs.InvalidInput
	ErrFetch              = errs.FetchError
	ErrResolutionNotFound = errs.ResolutionNotFound
	ErrParse              = errs.ParseError
	ErrNotFound           = errs.NotFound
	ErrInternal           = errs.Internal
)

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) ErrorKind { return errs.KindOf(err) }

// IsRetryable reports whether the caller may reasonably try again.
func IsRetryable(err error) bool { return errs.KindOf(err) == errs.FetchError }

// IngestError is returned by AddPodcast. State is the step that was in
// progress when the request moved to StateFailed.
type IngestError struct {
	ShareURL string
	State    IngestState
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("add %s failed while %s: %v", e.ShareURL, e.State, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
