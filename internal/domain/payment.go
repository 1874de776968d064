package domain

import (
	"time"

	"github.com/google/uuid"
)

type IntentState string

const (
	IntentCreated   IntentState = "CREATED"
	IntentSucceeded IntentState = "SUCCEEDED"
	IntentFailed    IntentState = "FAILED"
)

// PaymentIntent correlates a gateway payment with the reservation it settles.
// Its lifetime is bounded by the reservation's; an intent whose reservation
// went terminal can only move to FAILED.
type PaymentIntent struct {
	ID            string
	ReservationID uuid.UUID
	CampID        uuid.UUID
	AmountCents   int64
	Currency      string
	ClientSecret  string
	State         IntentState
	CreatedAt     time.Time
}
