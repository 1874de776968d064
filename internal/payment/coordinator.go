// Package payment settles reservations against the external gateway. The
// gateway call never happens inside a store transaction: capacity is already
// committed at reservation time, so nothing is locked while the network waits.
package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/gateway"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
)

type Store interface {
	WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetCamp(ctx context.Context, id uuid.UUID) (*domain.Camp, error)
	CampFee(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	GetReservationTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error)
	ConfirmReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error
	DeleteReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ReleaseOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	InsertIntent(ctx context.Context, intent domain.PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*domain.PaymentIntent, error)
	TransitionIntent(ctx context.Context, tx pgx.Tx, id string, to domain.IntentState) (bool, error)
	InsertRegistration(ctx context.Context, tx pgx.Tx, reg domain.Registration) error
	GetRegistration(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	ListRegistrations(ctx context.Context) ([]domain.Registration, error)
	RegistrationsByHolder(ctx context.Context, email string) ([]domain.Registration, error)
	ConfirmRegistration(ctx context.Context, id uuid.UUID) error
	DeleteRegistration(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Registration, error)
	InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error
}

type Auditor interface {
	LogSettlement(ctx context.Context, reg domain.Registration) error
	LogMismatch(ctx context.Context, intent domain.PaymentIntent, holder string) error
}

// LockReleaser frees the fast-path duplicate filter for a (camp, holder) pair
// once its reservation row no longer exists.
type LockReleaser interface {
	ReleaseReservationLock(ctx context.Context, campID, holderEmail string) error
}

type Coordinator struct {
	store    Store
	gateway  gateway.Client
	audit    Auditor
	locks    LockReleaser
	currency string
	logger   observability.Logger
	now      func() time.Time
}

func NewCoordinator(store Store, gw gateway.Client, audit Auditor, locks LockReleaser, currency string, logger observability.Logger) *Coordinator {
	return &Coordinator{store: store, gateway: gw, audit: audit, locks: locks, currency: currency, logger: logger, now: time.Now}
}

// CreateIntent opens a gateway payment for a live reservation. The amount is
// derived from the camp fee, never taken from the caller.
func (c *Coordinator) CreateIntent(ctx context.Context, reservationID uuid.UUID, actorEmail string, isAdmin bool) (*domain.PaymentIntent, error) {
	res, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !strings.EqualFold(res.HolderEmail, actorEmail) {
		return nil, domain.ErrForbidden
	}
	if res.State != domain.ReservationPending {
		return nil, domain.ErrReservationNotPending
	}
	if res.ExpiredAt(c.now()) {
		return nil, domain.ErrReservationExpired
	}

	camp, err := c.store.GetCamp(ctx, res.CampID)
	if err != nil {
		return nil, err
	}

	created, err := c.gateway.CreateIntent(ctx, gateway.IntentRequest{
		AmountCents: camp.FeeCents,
		Currency:    c.currency,
		Metadata: map[string]string{
			"reservation_id": res.ID.String(),
			"camp_id":        camp.ID.String(),
			"holder":         res.HolderEmail,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway intent")
	}

	intent := domain.PaymentIntent{
		ID:            created.IntentID,
		ReservationID: res.ID,
		CampID:        camp.ID,
		AmountCents:   camp.FeeCents,
		Currency:      c.currency,
		ClientSecret:  created.ClientSecret,
		State:         domain.IntentCreated,
		CreatedAt:     c.now(),
	}
	if err := c.store.InsertIntent(ctx, intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ConfirmPayment settles a gateway success into a permanent registration.
// The reservation flip, intent transition, registration insert, and
// reservation delete commit as one transaction; replays are no-ops. A payment
// for a reservation that already went terminal is routed to the
// reconciliation queue and reported as a mismatch, never silently accepted.
func (c *Coordinator) ConfirmPayment(ctx context.Context, intentID string) (*domain.Registration, error) {
	intent, err := c.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	switch intent.State {
	case domain.IntentSucceeded:
		return nil, nil
	case domain.IntentFailed:
		return nil, domain.ErrPaymentMismatch
	}

	var reg domain.Registration
	err = c.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		moved, err := c.store.TransitionIntent(ctx, tx, intentID, domain.IntentSucceeded)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrConflict
		}
		if err := c.store.ConfirmReservation(ctx, tx, intent.ReservationID, c.now()); err != nil {
			return err
		}
		res, err := c.store.GetReservationTx(ctx, tx, intent.ReservationID)
		if err != nil {
			return err
		}
		reg = domain.NewRegistration(*res, intent.AmountCents, intent.ID, domain.RegistrationConfirmed)
		if err := c.store.InsertRegistration(ctx, tx, reg); err != nil {
			return err
		}
		if err := c.store.DeleteReservation(ctx, tx, intent.ReservationID); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"registration_id": reg.ID,
			"camp_id":         reg.CampID,
			"holder":          reg.HolderEmail,
			"amount_cents":    reg.AmountCents,
			"payment_ref":     reg.PaymentRef,
		})
		return c.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("registration", reg.ID, crdb.EventRegistrationSettled, payload))
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another settlement took the intent; re-read to decide.
			current, gerr := c.store.GetIntent(ctx, intentID)
			if gerr != nil {
				return nil, gerr
			}
			if current.State == domain.IntentSucceeded {
				return nil, nil
			}
			return nil, domain.ErrPaymentMismatch
		}
		if errors.Is(err, domain.ErrReservationExpired) ||
			errors.Is(err, domain.ErrReservationNotPending) ||
			errors.Is(err, domain.ErrNotFound) {
			return nil, c.reportMismatch(ctx, intent)
		}
		return nil, err
	}

	observability.PaymentsSettled.Inc()
	c.releaseLock(ctx, reg.CampID, reg.HolderEmail)
	if c.audit != nil {
		if err := c.audit.LogSettlement(ctx, reg); err != nil {
			c.logger.WithError(err).Warn("failed to audit settlement")
		}
	}
	return &reg, nil
}

// releaseLock clears the duplicate filter so the holder can reserve again
// right away; the partial unique index already allows it.
func (c *Coordinator) releaseLock(ctx context.Context, campID uuid.UUID, holderEmail string) {
	if c.locks == nil {
		return
	}
	if err := c.locks.ReleaseReservationLock(ctx, campID.String(), holderEmail); err != nil {
		c.logger.WithError(err).Warn("failed to release reservation lock")
	}
}

// reportMismatch marks the intent failed and queues it for manual
// reconciliation. The slot was already released to someone else, so granting
// the registration here would overrun capacity.
func (c *Coordinator) reportMismatch(ctx context.Context, intent *domain.PaymentIntent) error {
	err := c.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		if _, err := c.store.TransitionIntent(ctx, tx, intent.ID, domain.IntentFailed); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"intent_id":      intent.ID,
			"reservation_id": intent.ReservationID,
			"camp_id":        intent.CampID,
			"amount_cents":   intent.AmountCents,
			"currency":       intent.Currency,
		})
		return c.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("payment_intent", intent.ReservationID, crdb.EventPaymentMismatch, payload))
	})
	if err != nil {
		return err
	}

	observability.PaymentMismatches.Inc()
	if c.audit != nil {
		if err := c.audit.LogMismatch(ctx, *intent, ""); err != nil {
			c.logger.WithError(err).Warn("failed to audit mismatch")
		}
	}
	return domain.ErrPaymentMismatch
}

// FinalizeRegistrations converts a cart of reservations under one payment
// reference. All conversions commit together or none do; the produced
// registrations await manual confirmation.
func (c *Coordinator) FinalizeRegistrations(ctx context.Context, reservationIDs []uuid.UUID, paymentRef string) ([]domain.Registration, error) {
	if len(reservationIDs) == 0 || paymentRef == "" {
		return nil, domain.ErrInvalidInput
	}

	var regs []domain.Registration
	err := c.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		regs = regs[:0]
		now := c.now()
		for _, id := range reservationIDs {
			res, err := c.store.GetReservationTx(ctx, tx, id)
			if err != nil {
				return err
			}
			switch res.State {
			case domain.ReservationPending:
				if err := c.store.ConfirmReservation(ctx, tx, id, now); err != nil {
					return err
				}
			case domain.ReservationConfirmed:
				// Already paid-for in a prior step; include it in the batch.
			default:
				return domain.ErrReservationNotPending
			}
			fee, err := c.store.CampFee(ctx, tx, res.CampID)
			if err != nil {
				return err
			}
			reg := domain.NewRegistration(*res, fee, paymentRef, domain.RegistrationAwaitingConfirmation)
			if err := c.store.InsertRegistration(ctx, tx, reg); err != nil {
				return err
			}
			if err := c.store.DeleteReservation(ctx, tx, id); err != nil {
				return err
			}
			regs = append(regs, reg)
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"payment_ref":  paymentRef,
			"reservations": reservationIDs,
		})
		return c.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("settlement", uuid.New(), crdb.EventRegistrationSettled, payload))
	})
	if err != nil {
		return nil, err
	}
	for _, reg := range regs {
		c.releaseLock(ctx, reg.CampID, reg.HolderEmail)
	}
	return regs, nil
}

// ConfirmRegistration is the admin manual override for cart settlements.
func (c *Coordinator) ConfirmRegistration(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	if !isAdmin {
		return domain.ErrForbidden
	}
	return c.store.ConfirmRegistration(ctx, id)
}

// RevokeRegistration removes a not-yet-confirmed registration and returns the
// slot to the camp's pool.
func (c *Coordinator) RevokeRegistration(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	if !isAdmin {
		return domain.ErrForbidden
	}
	return c.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		reg, err := c.store.DeleteRegistration(ctx, tx, id)
		if err != nil {
			return err
		}
		return c.store.ReleaseOne(ctx, tx, reg.CampID)
	})
}

func (c *Coordinator) Registrations(ctx context.Context) ([]domain.Registration, error) {
	return c.store.ListRegistrations(ctx)
}

func (c *Coordinator) RegistrationsByHolder(ctx context.Context, email string) ([]domain.Registration, error) {
	return c.store.RegistrationsByHolder(ctx, strings.ToLower(strings.TrimSpace(email)))
}
