// Package reservation manages the lifecycle of slot holds: admission,
// cancellation, and expiry. Every state change is a conditional update inside
// a serializable transaction, so the confirm-versus-sweep race is settled by
// the store and not by wall-clock reads.
package reservation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/redis"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
)

const sweepBatchSize = 100

type Store interface {
	WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateReservation(ctx context.Context, tx pgx.Tx, res domain.Reservation) error
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ReservationsByHolder(ctx context.Context, email string) ([]domain.Reservation, error)
	CancelReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ExpireReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error)
	GetExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	AdmitOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	ReleaseOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error
}

type Manager struct {
	store  Store
	cache  *redisadapter.Cache
	ttl    time.Duration
	logger observability.Logger
	now    func() time.Time
}

func NewManager(store Store, cache *redisadapter.Cache, ttl time.Duration, logger observability.Logger) *Manager {
	return &Manager{store: store, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Reserve admits the holder against the camp's capacity and persists a
// PENDING reservation, both in one transaction. Nothing is written on a
// capacity rejection.
func (m *Manager) Reserve(ctx context.Context, campID uuid.UUID, holderEmail string) (*domain.Reservation, error) {
	holderEmail = strings.ToLower(strings.TrimSpace(holderEmail))
	if holderEmail == "" {
		return nil, domain.ErrInvalidInput
	}

	res := domain.NewReservation(campID, holderEmail, m.ttl)

	if m.cache != nil {
		ok, err := m.cache.SetReservationLock(ctx, campID.String(), holderEmail, res.ID.String(), m.ttl)
		if err != nil {
			m.logger.WithError(err).Warn("reservation lock unavailable, falling through to store")
		} else if !ok {
			observability.ReservationsRejected.WithLabelValues("duplicate").Inc()
			return nil, domain.ErrDuplicateReservation
		}
	}

	err := m.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		if err := m.store.CreateReservation(ctx, tx, res); err != nil {
			return err
		}
		_, err := m.store.AdmitOne(ctx, tx, campID)
		return err
	})
	if err != nil {
		m.releaseLock(ctx, campID, holderEmail)
		switch {
		case errors.Is(err, domain.ErrCapacityExceeded):
			observability.ReservationsRejected.WithLabelValues("capacity").Inc()
		case errors.Is(err, domain.ErrDuplicateReservation):
			observability.ReservationsRejected.WithLabelValues("duplicate").Inc()
		}
		return nil, err
	}

	observability.ReservationsAdmitted.Inc()
	return &res, nil
}

// Cancel releases the hold. Only the holder or an admin may cancel; cancelling
// a reservation that already left PENDING is a no-op success.
func (m *Manager) Cancel(ctx context.Context, reservationID uuid.UUID, actorEmail string, isAdmin bool) error {
	res, err := m.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !isAdmin && !strings.EqualFold(res.HolderEmail, actorEmail) {
		return domain.ErrForbidden
	}

	err = m.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		cancelled, err := m.store.CancelReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if !cancelled {
			return nil
		}
		if err := m.store.ReleaseOne(ctx, tx, res.CampID); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"reservation_id": reservationID,
			"camp_id":        res.CampID,
			"holder":         res.HolderEmail,
		})
		return m.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("reservation", reservationID, crdb.EventReservationCancelled, payload))
	})
	if err != nil {
		return err
	}

	m.releaseLock(ctx, res.CampID, res.HolderEmail)
	return nil
}

// Get returns the reservation only to its holder or an admin.
func (m *Manager) Get(ctx context.Context, reservationID uuid.UUID, actorEmail string, isAdmin bool) (*domain.Reservation, error) {
	res, err := m.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !strings.EqualFold(res.HolderEmail, actorEmail) {
		return nil, domain.ErrForbidden
	}
	return res, nil
}

func (m *Manager) ListByHolder(ctx context.Context, holderEmail string) ([]domain.Reservation, error) {
	return m.store.ReservationsByHolder(ctx, strings.ToLower(strings.TrimSpace(holderEmail)))
}

// SweepExpired releases capacity held by reservations past their deadline.
// Each reservation is expired with a state-keyed conditional update, so a
// confirmation racing the sweep keeps its slot. Returns the number released.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	candidates, err := m.store.GetExpiredReservations(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range candidates {
		expired, err := m.expireWithRetry(ctx, res, now)
		if err != nil {
			m.logger.WithError(err).WithField("reservation_id", res.ID).Error("failed to expire reservation")
			continue
		}
		// A zero-row expire means a confirmation won the race; no slot moved.
		if expired {
			released++
		}
	}
	return released, nil
}

func (m *Manager) expireWithRetry(ctx context.Context, res domain.Reservation, now time.Time) (bool, error) {
	const maxRetries = 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		var expired bool
		err := m.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
			var err error
			expired, err = m.store.ExpireReservation(ctx, tx, res.ID, now)
			if err != nil || !expired {
				return err
			}
			if err := m.store.ReleaseOne(ctx, tx, res.CampID); err != nil {
				return err
			}
			payload, _ := json.Marshal(map[string]interface{}{
				"reservation_id": res.ID,
				"camp_id":        res.CampID,
				"holder":         res.HolderEmail,
				"expired_at":     now.Format(time.RFC3339),
			})
			return m.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("reservation", res.ID, crdb.EventReservationExpired, payload))
		})
		if err == nil {
			if expired {
				observability.ReservationsExpired.Inc()
				m.releaseLock(ctx, res.CampID, res.HolderEmail)
			}
			return expired, nil
		}
		lastErr = err
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, errors.Wrapf(lastErr, "failed after %d retries", maxRetries)
}

func (m *Manager) releaseLock(ctx context.Context, campID uuid.UUID, holderEmail string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.ReleaseReservationLock(ctx, campID.String(), holderEmail); err != nil {
		m.logger.WithError(err).Warn("failed to release reservation lock")
	}
}
