package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationState_CanTransition(t *testing.T) {
	cases := []struct {
		from, to ReservationState
		want     bool
	}{
		{ReservationPending, ReservationConfirmed, true},
		{ReservationPending, ReservationExpired, true},
		{ReservationPending, ReservationCancelled, true},
		{ReservationConfirmed, ReservationExpired, false},
		{ReservationConfirmed, ReservationCancelled, false},
		{ReservationExpired, ReservationPending, false},
		{ReservationExpired, ReservationConfirmed, false},
		{ReservationCancelled, ReservationConfirmed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestReservationState_Terminal(t *testing.T) {
	assert.False(t, ReservationPending.Terminal())
	assert.False(t, ReservationConfirmed.Terminal())
	assert.True(t, ReservationExpired.Terminal())
	assert.True(t, ReservationCancelled.Terminal())
}

func TestReservation_ExpiredAt(t *testing.T) {
	res := NewReservation(uuid.New(), "holder@example.com", 15*time.Minute)
	assert.False(t, res.ExpiredAt(res.CreatedAt))
	assert.False(t, res.ExpiredAt(res.ExpiresAt.Add(-time.Second)))
	assert.True(t, res.ExpiredAt(res.ExpiresAt))
	assert.True(t, res.ExpiredAt(res.ExpiresAt.Add(time.Hour)))
}

func TestNewCamp(t *testing.T) {
	camp, err := NewCamp("  Health Camp  ", 5000, time.Now(), "Hall A", "Dr. Reyes", 20, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Health Camp", camp.Name)
	assert.Equal(t, 20, camp.Remaining())

	_, err = NewCamp("", 5000, time.Now(), "", "", 20, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewCamp("Camp", 5000, time.Now(), "", "", 0, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewCamp("Camp", -1, time.Now(), "", "", 20, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
