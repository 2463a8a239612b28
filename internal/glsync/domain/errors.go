package domain

import "errors"

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrInvalidReferenceType = errors.New("invalid_reference_type")
	ErrEntryNotPending      = errors.New("journal_entry_not_pending")
	ErrAdapterRejected      = errors.New("gl_adapter_rejected")
	ErrAdapterUnavailable   = errors.New("gl_adapter_unavailable")
)

// IsValidationError reports whether err is caused by bad input rather than by
// the store or the external GL, so retrying cannot help.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrInvalidReferenceType)
}
