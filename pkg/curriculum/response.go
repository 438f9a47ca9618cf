package curriculum

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidResponse is returned when a decoded page violates the envelope
// invariants.
var ErrInvalidResponse = errors.New("invalid curriculum response")

var validate = validator.New()

// APIResponse is the paging envelope returned by the class-search endpoint.
// Total counts matching courses, not pages, and may drift during a fetch.
type APIResponse struct {
	PageSize   uint32   `json:"pageSize" validate:"min=1"`
	PageNumber uint32   `json:"pageNumber" validate:"min=1"`
	Total      uint32   `json:"total"`
	Classes    []Course `json:"classes" validate:"required,dive"`
}

// Empty reports whether the page marks end-of-stream. Only a present,
// empty classes array does; decoding rejects a missing one.
func (r *APIResponse) Empty() bool {
	return len(r.Classes) == 0
}

// Validate checks the envelope against the page size that was requested.
// A requestedPageSize of 0 skips the echo check.
func (r *APIResponse) Validate(requestedPageSize int) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if len(r.Classes) > int(r.PageSize) {
		return fmt.Errorf("%w: %d classes exceed page size %d", ErrInvalidResponse, len(r.Classes), r.PageSize)
	}

	if requestedPageSize > 0 && int(r.PageSize) != requestedPageSize {
		return fmt.Errorf("%w: page size %d, requested %d", ErrInvalidResponse, r.PageSize, requestedPageSize)
	}

	return nil
}
