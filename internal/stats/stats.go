// Package stats derives read-only metrics from committed state. Pending
// reservations and unconfirmed registrations never count as revenue.
package stats

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	CountAndRevenue(ctx context.Context) (int64, int64, error)
	PerCampParticipation(ctx context.Context) ([]crdb.CampParticipation, error)
}

type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Snapshot struct {
	Users         int64 `json:"users"`
	Registrations int64 `json:"registrations"`
	RevenueCents  int64 `json:"revenue"`
}

type CampStats struct {
	CampID        uuid.UUID `json:"camp_id"`
	Registrations int64     `json:"registrations"`
	RevenueCents  int64     `json:"revenue"`
}

type Aggregator struct {
	store Store
	users UserCounter
}

func NewAggregator(store Store, users UserCounter) *Aggregator {
	return &Aggregator{store: store, users: users}
}

// Overall computes the headline numbers. Count and revenue come from one
// statement so the pair is a consistent snapshot; the user count is an
// independent dimension and may be fetched concurrently.
func (a *Aggregator) Overall(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, revenue, err := a.store.CountAndRevenue(gctx)
		if err != nil {
			return err
		}
		snap.Registrations = count
		snap.RevenueCents = revenue
		return nil
	})
	if a.users != nil {
		g.Go(func() error {
			users, err := a.users.Count(gctx)
			if err != nil {
				return err
			}
			snap.Users = users
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (a *Aggregator) PerCamp(ctx context.Context) ([]CampStats, error) {
	rows, err := a.store.PerCampParticipation(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CampStats, 0, len(rows))
	for _, row := range rows {
		out = append(out, CampStats{
			CampID:        row.CampID,
			Registrations: row.Registrations,
			RevenueCents:  row.RevenueCents,
		})
	}
	return out, nil
}
