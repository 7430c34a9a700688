package app

import (
	"errors"
	"strings"

	"intentd/internal/validate"
)

// ErrRejected is returned (wrapped in *RejectedError) when a request fails
// validation. Nothing is enqueued for a rejected request.
var ErrRejected = errors.New("request rejected")

type RejectedError struct {
	Outcome validate.Outcome
}

func (e *RejectedError) Error() string {
	if len(e.Outcome.Errors) == 0 {
		return ErrRejected.Error()
	}
	return ErrRejected.Error() + ": " + strings.Join(e.Outcome.Errors, "; ")
}

func (e *RejectedError) Unwrap() error { return ErrRejected }
