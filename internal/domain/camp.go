package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Camp holds the authoritative capacity counter. Consumed is only ever moved
// by the registry's conditional admit/release statements, never assigned.
type Camp struct {
	ID           uuid.UUID
	Name         string
	FeeCents     int64
	StartsAt     time.Time
	Location     string
	Professional string
	Capacity     int
	Consumed     int
	CreatedBy    string
}

func (c Camp) Remaining() int {
	return c.Capacity - c.Consumed
}

func NewCamp(name string, feeCents int64, startsAt time.Time, location, professional string, capacity int, createdBy string) (Camp, error) {
	name = strings.TrimSpace(name)
	if name == "" || capacity <= 0 || feeCents < 0 {
		return Camp{}, ErrInvalidInput
	}
	return Camp{
		ID:           uuid.New(),
		Name:         name,
		FeeCents:     feeCents,
		StartsAt:     startsAt,
		Location:     location,
		Professional: professional,
		Capacity:     capacity,
		CreatedBy:    createdBy,
	}, nil
}
