package errutil

import "errors"

type CoreStatus string

const (
	StatusBadRequest         CoreStatus = "BAD_REQUEST"
	StatusValidationFailed   CoreStatus = "VALIDATION_FAILED"
	StatusNotFound           CoreStatus = "NOT_FOUND"
	StatusConflict           CoreStatus = "CONFLICT"
	StatusTimeout            CoreStatus = "TIMEOUT"
	StatusServiceUnavailable CoreStatus = "SERVICE_UNAVAILABLE"
	StatusInternal           CoreStatus = "INTERNAL"
	StatusUnknown            CoreStatus = "UNKNOWN"

	// Fulfillment domain blocks. Redelivery cannot clear these, so the
	// message layer must not retry them.
	StatusInvalidTier        CoreStatus = "INVALID_TIER"
	StatusNoTrainerAvailable CoreStatus = "NO_TRAINER_AVAILABLE"
	StatusMissingGeolocation CoreStatus = "MISSING_GEOLOCATION"
)

// StatusOf extracts the CoreStatus from err, or StatusUnknown.
func StatusOf(err error) CoreStatus {
	var base BaseError
	if errors.As(err, &base) {
		return base.Code
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}

	return StatusUnknown
}

func IsStatus(err error, status CoreStatus) bool {
	return err != nil && StatusOf(err) == status
}

func IsConflict(err error) bool {
	return IsStatus(err, StatusConflict)
}

// IsDomainBlock reports whether err is a terminal domain condition rather
// than a transient infrastructure failure. Domain blocks are dead-lettered
// or recorded, never retried.
func IsDomainBlock(err error) bool {
	switch StatusOf(err) {
	case StatusInvalidTier, StatusNoTrainerAvailable, StatusMissingGeolocation, StatusValidationFailed:
		return true
	default:
		return false
	}
}
