package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrBookNotFound       = errors.New("book not found")
	ErrInvalidDuration    = errors.New("requested days out of allowed range")
	ErrDuplicateRequest   = errors.New("pending request already exists for this book")
	ErrNotOwner           = errors.New("caller does not own this record")
	ErrInvalidState       = errors.New("invalid state for this transition")
	ErrMissingReason      = errors.New("rejection reason is required")
	ErrNoCopiesAvailable  = errors.New("no copies available")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var domain = []error{
	ErrNotFound, ErrBookNotFound, ErrInvalidDuration, ErrDuplicateRequest,
	ErrNotOwner, ErrInvalidState, ErrMissingReason, ErrNoCopiesAvailable,
}

// Storage passes domain errors through and tags everything else as a
// persistence failure the caller may retry.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range domain {
		if errors.Is(err, e) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

type ValidationErrorResponse struct {
	Message string `json:"message"`
	Errors  struct {
		AdditionalProperties string `json:"additionalProperties"`
	} `json:"errors"`
}
