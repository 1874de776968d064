package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

func (r *Repository) InsertRegistration(ctx context.Context, tx pgx.Tx, reg domain.Registration) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO registrations (id, camp_id, holder_email, amount_cents, payment_ref, status, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, reg.ID, reg.CampID, reg.HolderEmail, reg.AmountCents, reg.PaymentRef, reg.Status, reg.ConfirmedAt)
	return err
}

func (r *Repository) GetRegistration(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	var reg domain.Registration
	err := r.pool.QueryRow(ctx, `
		SELECT id, camp_id, holder_email, amount_cents, payment_ref, status, confirmed_at
		FROM registrations WHERE id = $1
	`, id).Scan(&reg.ID, &reg.CampID, &reg.HolderEmail, &reg.AmountCents, &reg.PaymentRef, &reg.Status, &reg.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Repository) ListRegistrations(ctx context.Context) ([]domain.Registration, error) {
	return r.queryRegistrations(ctx, `
		SELECT id, camp_id, holder_email, amount_cents, payment_ref, status, confirmed_at
		FROM registrations ORDER BY confirmed_at DESC
	`)
}

func (r *Repository) RegistrationsByHolder(ctx context.Context, email string) ([]domain.Registration, error) {
	return r.queryRegistrations(ctx, `
		SELECT id, camp_id, holder_email, amount_cents, payment_ref, status, confirmed_at
		FROM registrations WHERE holder_email = $1 ORDER BY confirmed_at DESC
	`, email)
}

func (r *Repository) RegistrationsByPaymentRef(ctx context.Context, paymentRef string) ([]domain.Registration, error) {
	return r.queryRegistrations(ctx, `
		SELECT id, camp_id, holder_email, amount_cents, payment_ref, status, confirmed_at
		FROM registrations WHERE payment_ref = $1 ORDER BY confirmed_at DESC
	`, paymentRef)
}

func (r *Repository) queryRegistrations(ctx context.Context, sql string, args ...any) ([]domain.Registration, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.ID, &reg.CampID, &reg.HolderEmail, &reg.AmountCents,
			&reg.PaymentRef, &reg.Status, &reg.ConfirmedAt); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// ConfirmRegistration is the manual override: AWAITING_CONFIRMATION to
// CONFIRMED only. A registration that is already CONFIRMED stays untouched.
func (r *Repository) ConfirmRegistration(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE registrations SET status = 'CONFIRMED'
		WHERE id = $1 AND status = 'AWAITING_CONFIRMATION'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		reg, err := r.GetRegistration(ctx, id)
		if err != nil {
			return err
		}
		if reg.Status == domain.RegistrationConfirmed {
			return nil
		}
		return domain.ErrConflict
	}
	return nil
}

// DeleteRegistration removes a not-yet-confirmed registration and returns the
// held slot in the same transaction.
func (r *Repository) DeleteRegistration(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Registration, error) {
	var reg domain.Registration
	err := tx.QueryRow(ctx, `
		DELETE FROM registrations WHERE id = $1 AND status = 'AWAITING_CONFIRMATION'
		RETURNING id, camp_id, holder_email, amount_cents, payment_ref, status, confirmed_at
	`, id).Scan(&reg.ID, &reg.CampID, &reg.HolderEmail, &reg.AmountCents, &reg.PaymentRef, &reg.Status, &reg.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.GetRegistration(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// CountAndRevenue reads the confirmed totals in one statement so the snapshot
// is internally consistent.
func (r *Repository) CountAndRevenue(ctx context.Context) (int64, int64, error) {
	var count, revenue int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(sum(amount_cents), 0)
		FROM registrations WHERE status = 'CONFIRMED'
	`).Scan(&count, &revenue)
	return count, revenue, err
}

type CampParticipation struct {
	CampID        uuid.UUID
	Registrations int64
	RevenueCents  int64
}

func (r *Repository) PerCampParticipation(ctx context.Context) ([]CampParticipation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT camp_id, count(*), COALESCE(sum(amount_cents), 0)
		FROM registrations WHERE status = 'CONFIRMED'
		GROUP BY camp_id ORDER BY camp_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CampParticipation
	for rows.Next() {
		var p CampParticipation
		if err := rows.Scan(&p.CampID, &p.Registrations, &p.RevenueCents); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
