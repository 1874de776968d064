package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

func (r *Repository) CreateCamp(ctx context.Context, camp domain.Camp) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO camps (id, name, fee_cents, starts_at, location, professional, capacity, consumed, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
	`, camp.ID, camp.Name, camp.FeeCents, camp.StartsAt, camp.Location, camp.Professional, camp.Capacity, camp.CreatedBy)
	return err
}

func (r *Repository) GetCamp(ctx context.Context, id uuid.UUID) (*domain.Camp, error) {
	var camp domain.Camp
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, fee_cents, starts_at, location, professional, capacity, consumed, created_by
		FROM camps WHERE id = $1
	`, id).Scan(&camp.ID, &camp.Name, &camp.FeeCents, &camp.StartsAt, &camp.Location,
		&camp.Professional, &camp.Capacity, &camp.Consumed, &camp.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &camp, nil
}

func (r *Repository) ListCamps(ctx context.Context) ([]domain.Camp, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, fee_cents, starts_at, location, professional, capacity, consumed, created_by
		FROM camps ORDER BY starts_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var camps []domain.Camp
	for rows.Next() {
		var camp domain.Camp
		if err := rows.Scan(&camp.ID, &camp.Name, &camp.FeeCents, &camp.StartsAt, &camp.Location,
			&camp.Professional, &camp.Capacity, &camp.Consumed, &camp.CreatedBy); err != nil {
			return nil, err
		}
		camps = append(camps, camp)
	}
	return camps, rows.Err()
}

// UpdateCamp rewrites camp metadata. Consumed is deliberately absent: the
// counter only moves through AdmitOne/ReleaseOne. The new capacity may not
// drop below the slots already consumed.
func (r *Repository) UpdateCamp(ctx context.Context, camp domain.Camp) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE camps
		SET name = $2, fee_cents = $3, starts_at = $4, location = $5, professional = $6, capacity = $7
		WHERE id = $1 AND $7 >= consumed
	`, camp.ID, camp.Name, camp.FeeCents, camp.StartsAt, camp.Location, camp.Professional, camp.Capacity)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetCamp(ctx, camp.ID); err != nil {
			return err
		}
		return domain.ErrInvalidInput
	}
	return nil
}

func (r *Repository) DeleteCamp(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM camps WHERE id = $1 AND consumed = 0
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetCamp(ctx, id); err != nil {
			return err
		}
		return domain.ErrCampInUse
	}
	return nil
}

// CampFee reads the fee inside an open transaction so batch settlement
// prices every conversion from the same snapshot.
func (r *Repository) CampFee(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error) {
	var fee int64
	err := tx.QueryRow(ctx, `SELECT fee_cents FROM camps WHERE id = $1`, id).Scan(&fee)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return fee, err
}

// AdmitOne is the admission control gate: a single conditional increment that
// can never push consumed past capacity, regardless of concurrent callers.
// Returns the remaining slot count after admission.
func (r *Repository) AdmitOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	var remaining int
	err := tx.QueryRow(ctx, `
		UPDATE camps SET consumed = consumed + 1
		WHERE id = $1 AND consumed < capacity
		RETURNING capacity - consumed
	`, id).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM camps WHERE id = $1)`, id).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrCapacityExceeded
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// ReleaseOne returns a slot to the pool, floored at zero so a double release
// cannot drive the counter negative.
func (r *Repository) ReleaseOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE camps SET consumed = consumed - 1
		WHERE id = $1 AND consumed > 0
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM camps WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}
