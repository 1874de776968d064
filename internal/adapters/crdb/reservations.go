package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

func (r *Repository) CreateReservation(ctx context.Context, tx pgx.Tx, res domain.Reservation) error {
	result, err := tx.Exec(ctx, `
		INSERT INTO reservations (id, camp_id, holder_email, state, created_at, expires_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5)
		ON CONFLICT (camp_id, holder_email) WHERE state = 'PENDING' DO NOTHING
	`, res.ID, res.CampID, res.HolderEmail, res.CreatedAt, res.ExpiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDuplicateReservation
	}
	return nil
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return r.getReservation(ctx, r.pool, id)
}

// GetReservationTx reads a reservation inside an open transaction.
func (r *Repository) GetReservationTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error) {
	return r.getReservation(ctx, tx, id)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getReservation(ctx context.Context, q rowQuerier, id uuid.UUID) (*domain.Reservation, error) {
	var res domain.Reservation
	err := q.QueryRow(ctx, `
		SELECT id, camp_id, holder_email, state, created_at, expires_at
		FROM reservations WHERE id = $1
	`, id).Scan(&res.ID, &res.CampID, &res.HolderEmail, &res.State, &res.CreatedAt, &res.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) ReservationsByHolder(ctx context.Context, email string) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, camp_id, holder_email, state, created_at, expires_at
		FROM reservations WHERE holder_email = $1 ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

// ConfirmReservation flips PENDING to CONFIRMED with a single conditional
// update keyed on current state and deadline. The expiry race is decided
// here, in the store: whichever of confirm and sweep lands first wins, and
// the loser's predicate matches zero rows.
func (r *Repository) ConfirmReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE reservations SET state = 'CONFIRMED'
		WHERE id = $1 AND state = 'PENDING' AND expires_at > $2
	`, id, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		res, err := r.getReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if res.State == domain.ReservationPending {
			return domain.ErrReservationExpired
		}
		return domain.ErrReservationNotPending
	}
	return nil
}

// ExpireReservation transitions PENDING to EXPIRED only when the deadline has
// passed. A reservation confirmed in the same instant stays confirmed.
func (r *Repository) ExpireReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE reservations SET state = 'EXPIRED'
		WHERE id = $1 AND state = 'PENDING' AND expires_at <= $2
	`, id, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// CancelReservation transitions PENDING to CANCELLED. Returns false when the
// reservation already left PENDING, which callers treat as an idempotent no-op.
func (r *Repository) CancelReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE reservations SET state = 'CANCELLED'
		WHERE id = $1 AND state = 'PENDING'
	`, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) DeleteReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	result, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, camp_id, holder_email, state, created_at, expires_at
		FROM reservations WHERE state = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.CampID, &res.HolderEmail, &res.State, &res.CreatedAt, &res.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
