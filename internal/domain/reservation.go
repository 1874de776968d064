package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationState string

const (
	ReservationPending   ReservationState = "PENDING"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationExpired   ReservationState = "EXPIRED"
	ReservationCancelled ReservationState = "CANCELLED"
)

// Reservation is a time-bounded hold on one camp slot. At most one PENDING
// reservation may exist per (camp, holder) pair.
type Reservation struct {
	ID          uuid.UUID
	CampID      uuid.UUID
	HolderEmail string
	State       ReservationState
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func NewReservation(campID uuid.UUID, holderEmail string, ttl time.Duration) Reservation {
	now := time.Now()
	return Reservation{
		ID:          uuid.New(),
		CampID:      campID,
		HolderEmail: holderEmail,
		State:       ReservationPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Terminal reports whether the reservation can no longer change state.
func (s ReservationState) Terminal() bool {
	return s == ReservationExpired || s == ReservationCancelled
}

var reservationTransitions = map[ReservationState][]ReservationState{
	ReservationPending: {ReservationConfirmed, ReservationExpired, ReservationCancelled},
	// CONFIRMED reservations are deleted on settlement, not transitioned.
	ReservationConfirmed: {},
	ReservationExpired:   {},
	ReservationCancelled: {},
}

// CanTransition validates a state change against the closed transition table.
func (s ReservationState) CanTransition(to ReservationState) bool {
	for _, next := range reservationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (r Reservation) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
