package certification

import "errors"

var (
	ErrNotFound          = errors.New("certification: request not found")
	ErrInvalidDevice     = errors.New("certification: device id required")
	ErrInvalidOwner      = errors.New("certification: invalid owner address")
	ErrInvalidPeriod     = errors.New("certification: fromTime must be before toTime")
	ErrInvalidEnergy     = errors.New("certification: energy must be a positive integer")
	ErrInvalidStatus     = errors.New("certification: unknown status")
	ErrAlreadyApproved   = errors.New("certification: request already approved")
	ErrAlreadyRevoked    = errors.New("certification: request already revoked")
	ErrConflictingPeriod = errors.New("certification: overlapping request exists for device and period")
	ErrConcurrentUpdate  = errors.New("certification: request modified concurrently")
)

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDevice) ||
		errors.Is(err, ErrInvalidOwner) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidEnergy) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsTransition reports whether err is a rejected state transition.
func IsTransition(err error) bool {
	return errors.Is(err, ErrAlreadyApproved) || errors.Is(err, ErrAlreadyRevoked)
}
