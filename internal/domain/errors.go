package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrCapacityExceeded      = errors.New("camp capacity exceeded")
	ErrDuplicateReservation  = errors.New("duplicate pending reservation")
	ErrReservationExpired    = errors.New("reservation expired")
	ErrReservationNotPending = errors.New("reservation not pending")
	ErrPaymentMismatch       = errors.New("payment does not match a live reservation")
	ErrCampInUse             = errors.New("camp has active participants")
	ErrForbidden             = errors.New("forbidden")
)
