package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

func (r *Repository) InsertIntent(ctx context.Context, intent domain.PaymentIntent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_intents (id, reservation_id, camp_id, amount_cents, currency, client_secret, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'CREATED', $7)
	`, intent.ID, intent.ReservationID, intent.CampID, intent.AmountCents, intent.Currency, intent.ClientSecret, intent.CreatedAt)
	return err
}

func (r *Repository) GetIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := r.pool.QueryRow(ctx, `
		SELECT id, reservation_id, camp_id, amount_cents, currency, client_secret, state, created_at
		FROM payment_intents WHERE id = $1
	`, id).Scan(&intent.ID, &intent.ReservationID, &intent.CampID, &intent.AmountCents,
		&intent.Currency, &intent.ClientSecret, &intent.State, &intent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *Repository) IntentByReservation(ctx context.Context, reservationID uuid.UUID) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := r.pool.QueryRow(ctx, `
		SELECT id, reservation_id, camp_id, amount_cents, currency, client_secret, state, created_at
		FROM payment_intents WHERE reservation_id = $1 ORDER BY created_at DESC LIMIT 1
	`, reservationID).Scan(&intent.ID, &intent.ReservationID, &intent.CampID, &intent.AmountCents,
		&intent.Currency, &intent.ClientSecret, &intent.State, &intent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// TransitionIntent moves an intent out of CREATED. Returns false when another
// settlement already moved it, which makes replayed callbacks no-ops.
func (r *Repository) TransitionIntent(ctx context.Context, tx pgx.Tx, id string, to domain.IntentState) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE payment_intents SET state = $2
		WHERE id = $1 AND state = 'CREATED'
	`, id, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
