package domain

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	RegistrationAwaitingConfirmation RegistrationStatus = "AWAITING_CONFIRMATION"
	RegistrationConfirmed            RegistrationStatus = "CONFIRMED"
)

// Registration is the permanent, paid participation record produced by
// settling a reservation. Once CONFIRMED it is immutable.
type Registration struct {
	ID          uuid.UUID
	CampID      uuid.UUID
	HolderEmail string
	AmountCents int64
	PaymentRef  string
	Status      RegistrationStatus
	ConfirmedAt time.Time
}

func NewRegistration(res Reservation, amountCents int64, paymentRef string, status RegistrationStatus) Registration {
	return Registration{
		ID:          uuid.New(),
		CampID:      res.CampID,
		HolderEmail: res.HolderEmail,
		AmountCents: amountCents,
		PaymentRef:  paymentRef,
		Status:      status,
		ConfirmedAt: time.Now(),
	}
}
