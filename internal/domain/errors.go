package domain

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("offer changed, please retry")
	ErrPersistence         = errors.New("persistence failure")
	ErrUnauthorized        = errors.New("authentication required")
	ErrForbidden           = errors.New("operation not permitted for role")
	ErrListingNotFound     = errors.New("listing not found")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrOfferNotFound       = errors.New("offer not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDuplicateEvent      = errors.New("duplicate event")
)
