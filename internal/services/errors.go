package services

import "errors"

var (
	// ErrQuoteInvalidInput signals a quote request that cannot be priced at all.
	ErrQuoteInvalidInput = errors.New("quote service: invalid input")
	// ErrQuoteSnapshotUnavailable indicates the reference data could not be loaded.
	ErrQuoteSnapshotUnavailable = errors.New("quote service: pricing snapshot unavailable")
	// ErrPromotionNotFound indicates no promotion exists for the provided id.
	ErrPromotionNotFound = errors.New("quote service: promotion not found")

	// ErrSpecialRateInvalid signals a malformed special rate.
	ErrSpecialRateInvalid = errors.New("special rate service: invalid special rate")
	// ErrSpecialRateOverlap signals a rate whose window overlaps another rate for the same customer and service.
	ErrSpecialRateOverlap = errors.New("special rate service: overlapping special rate")
	// ErrSpecialRateNotFound indicates the rate does not exist for the customer.
	ErrSpecialRateNotFound = errors.New("special rate service: special rate not found")
	// ErrSpecialRateUnavailable indicates the rate store could not be reached.
	ErrSpecialRateUnavailable = errors.New("special rate service: repository unavailable")
)
