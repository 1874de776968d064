package payment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/gateway"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	camps         map[uuid.UUID]*domain.Camp
	reservations  map[uuid.UUID]*domain.Reservation
	intents       map[string]*domain.PaymentIntent
	registrations map[uuid.UUID]*domain.Registration
	outbox        []crdb.OutboxRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		camps:         make(map[uuid.UUID]*domain.Camp),
		reservations:  make(map[uuid.UUID]*domain.Reservation),
		intents:       make(map[string]*domain.PaymentIntent),
		registrations: make(map[uuid.UUID]*domain.Registration),
	}
}

func (f *fakeStore) addCamp(feeCents int64) uuid.UUID {
	camp, _ := domain.NewCamp("Camp", feeCents, time.Now().Add(time.Hour), "Hall", "Dr. A", 10, "admin")
	f.camps[camp.ID] = &camp
	return camp.ID
}

func (f *fakeStore) addReservation(campID uuid.UUID, email string, ttl time.Duration) domain.Reservation {
	res := domain.NewReservation(campID, email, ttl)
	copied := res
	f.reservations[res.ID] = &copied
	return res
}

// WithTxRetry runs fn against the maps and restores a snapshot on error,
// mirroring transaction rollback.
func (f *fakeStore) WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	snap := f.snapshot()
	if err := fn(nil); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeStore) snapshot() *fakeStore {
	snap := newFakeStore()
	for id, camp := range f.camps {
		copied := *camp
		snap.camps[id] = &copied
	}
	for id, res := range f.reservations {
		copied := *res
		snap.reservations[id] = &copied
	}
	for id, intent := range f.intents {
		copied := *intent
		snap.intents[id] = &copied
	}
	for id, reg := range f.registrations {
		copied := *reg
		snap.registrations[id] = &copied
	}
	snap.outbox = append([]crdb.OutboxRecord(nil), f.outbox...)
	return snap
}

func (f *fakeStore) restore(snap *fakeStore) {
	f.camps = snap.camps
	f.reservations = snap.reservations
	f.intents = snap.intents
	f.registrations = snap.registrations
	f.outbox = snap.outbox
}

func (f *fakeStore) GetCamp(ctx context.Context, id uuid.UUID) (*domain.Camp, error) {
	camp, ok := f.camps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *camp
	return &copied, nil
}

func (f *fakeStore) CampFee(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error) {
	camp, ok := f.camps[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return camp.FeeCents, nil
}

func (f *fakeStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, ok := f.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *res
	return &copied, nil
}

func (f *fakeStore) GetReservationTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error) {
	return f.GetReservation(ctx, id)
}

func (f *fakeStore) ConfirmReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error {
	res, ok := f.reservations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if res.State == domain.ReservationPending && now.Before(res.ExpiresAt) {
		res.State = domain.ReservationConfirmed
		return nil
	}
	if res.State == domain.ReservationPending {
		return domain.ErrReservationExpired
	}
	return domain.ErrReservationNotPending
}

func (f *fakeStore) DeleteReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, ok := f.reservations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.reservations, id)
	return nil
}

func (f *fakeStore) ReleaseOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	camp, ok := f.camps[id]
	if !ok {
		return domain.ErrNotFound
	}
	if camp.Consumed > 0 {
		camp.Consumed--
	}
	return nil
}

func (f *fakeStore) InsertIntent(ctx context.Context, intent domain.PaymentIntent) error {
	copied := intent
	f.intents[intent.ID] = &copied
	return nil
}

func (f *fakeStore) GetIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	intent, ok := f.intents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *intent
	return &copied, nil
}

func (f *fakeStore) TransitionIntent(ctx context.Context, tx pgx.Tx, id string, to domain.IntentState) (bool, error) {
	intent, ok := f.intents[id]
	if !ok || intent.State != domain.IntentCreated {
		return false, nil
	}
	intent.State = to
	return true, nil
}

func (f *fakeStore) InsertRegistration(ctx context.Context, tx pgx.Tx, reg domain.Registration) error {
	copied := reg
	f.registrations[reg.ID] = &copied
	return nil
}

func (f *fakeStore) GetRegistration(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	reg, ok := f.registrations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *reg
	return &copied, nil
}

func (f *fakeStore) ListRegistrations(ctx context.Context) ([]domain.Registration, error) {
	var out []domain.Registration
	for _, reg := range f.registrations {
		out = append(out, *reg)
	}
	return out, nil
}

func (f *fakeStore) RegistrationsByHolder(ctx context.Context, email string) ([]domain.Registration, error) {
	var out []domain.Registration
	for _, reg := range f.registrations {
		if reg.HolderEmail == email {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (f *fakeStore) ConfirmRegistration(ctx context.Context, id uuid.UUID) error {
	reg, ok := f.registrations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if reg.Status == domain.RegistrationConfirmed {
		return nil
	}
	reg.Status = domain.RegistrationConfirmed
	return nil
}

func (f *fakeStore) DeleteRegistration(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Registration, error) {
	reg, ok := f.registrations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if reg.Status != domain.RegistrationAwaitingConfirmation {
		return nil, domain.ErrConflict
	}
	delete(f.registrations, id)
	copied := *reg
	return &copied, nil
}

func (f *fakeStore) InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error {
	f.outbox = append(f.outbox, record)
	return nil
}

type fakeGateway struct {
	calls int
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.calls++
	return &gateway.Intent{IntentID: "pi_fake_" + uuid.NewString(), ClientSecret: "cs_fake"}, nil
}

type fakeLocks struct {
	released []string
}

func (l *fakeLocks) ReleaseReservationLock(ctx context.Context, campID, holderEmail string) error {
	l.released = append(l.released, campID+":"+holderEmail)
	return nil
}

func newTestCoordinator(store Store, gw gateway.Client) *Coordinator {
	return NewCoordinator(store, gw, nil, nil, "usd", observability.NewLogger())
}

func TestCoordinator_CreateIntent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campID := store.addCamp(7500)
	res := store.addReservation(campID, "holder@example.com", 15*time.Minute)
	gw := &fakeGateway{}
	c := newTestCoordinator(store, gw)

	intent, err := c.CreateIntent(ctx, res.ID, "holder@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), intent.AmountCents)
	assert.Equal(t, "usd", intent.Currency)
	assert.Equal(t, domain.IntentCreated, intent.State)
	assert.Equal(t, 1, gw.calls)

	_, err = c.CreateIntent(ctx, res.ID, "stranger@example.com", false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	expired := store.addReservation(campID, "late@example.com", -time.Minute)
	_, err = c.CreateIntent(ctx, expired.ID, "late@example.com", false)
	assert.ErrorIs(t, err, domain.ErrReservationExpired)
}

func TestCoordinator_ConfirmPayment(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campID := store.addCamp(7500)
	res := store.addReservation(campID, "holder@example.com", 15*time.Minute)
	c := newTestCoordinator(store, &fakeGateway{})

	intent, err := c.CreateIntent(ctx, res.ID, "holder@example.com", false)
	require.NoError(t, err)

	reg, err := c.ConfirmPayment(ctx, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, domain.RegistrationConfirmed, reg.Status)
	assert.Equal(t, int64(7500), reg.AmountCents)
	assert.Equal(t, intent.ID, reg.PaymentRef)

	// The reservation row is gone; the registration is the durable record.
	_, err = store.GetReservation(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.Len(t, store.outbox, 1)
	assert.Equal(t, crdb.EventRegistrationSettled, store.outbox[0].EventType)

	// Redelivered success callback acknowledges without a second settlement.
	replayed, err := c.ConfirmPayment(ctx, intent.ID)
	require.NoError(t, err)
	assert.Nil(t, replayed)
	assert.Len(t, store.registrations, 1)
}

func TestCoordinator_ConfirmPaymentFreesDuplicateLock(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campID := store.addCamp(7500)
	res := store.addReservation(campID, "holder@example.com", 15*time.Minute)
	locks := &fakeLocks{}
	c := NewCoordinator(store, &fakeGateway{}, nil, locks, "usd", observability.NewLogger())

	intent, err := c.CreateIntent(ctx, res.ID, "holder@example.com", false)
	require.NoError(t, err)

	reg, err := c.ConfirmPayment(ctx, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, reg)

	// Settlement deletes the reservation row, so the (camp, holder) filter
	// must open up for a fresh hold before the old TTL runs out.
	require.Len(t, locks.released, 1)
	assert.Equal(t, campID.String()+":holder@example.com", locks.released[0])

	// A failed settlement leaves the filter untouched.
	expired := store.addReservation(campID, "late@example.com", 15*time.Minute)
	badIntent, err := c.CreateIntent(ctx, expired.ID, "late@example.com", false)
	require.NoError(t, err)
	store.reservations[expired.ID].State = domain.ReservationExpired
	_, err = c.ConfirmPayment(ctx, badIntent.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMismatch)
	assert.Len(t, locks.released, 1)
}

func TestCoordinator_FinalizeFreesDuplicateLocks(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campA := store.addCamp(5000)
	campB := store.addCamp(9000)
	resA := store.addReservation(campA, "holder@example.com", 15*time.Minute)
	resB := store.addReservation(campB, "holder@example.com", 15*time.Minute)
	locks := &fakeLocks{}
	c := NewCoordinator(store, &fakeGateway{}, nil, locks, "usd", observability.NewLogger())

	_, err := c.FinalizeRegistrations(ctx, []uuid.UUID{resA.ID, resB.ID}, "pay_ref_3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		campA.String() + ":holder@example.com",
		campB.String() + ":holder@example.com",
	}, locks.released)
}

func TestCoordinator_ConfirmPaymentMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campID := store.addCamp(7500)
	res := store.addReservation(campID, "holder@example.com", 15*time.Minute)
	store.camps[campID].Consumed = 1
	c := newTestCoordinator(store, &fakeGateway{})

	intent, err := c.CreateIntent(ctx, res.ID, "holder@example.com", false)
	require.NoError(t, err)

	// The hold expires before the gateway reports success.
	store.reservations[res.ID].State = domain.ReservationExpired

	reg, err := c.ConfirmPayment(ctx, intent.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMismatch)
	assert.Nil(t, reg)
	assert.Empty(t, store.registrations)

	stored, err := store.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentFailed, stored.State)

	var mismatches int
	for _, rec := range store.outbox {
		if rec.EventType == crdb.EventPaymentMismatch {
			mismatches++
		}
	}
	assert.Equal(t, 1, mismatches)

	// Later redeliveries of the same intent keep reporting the mismatch.
	_, err = c.ConfirmPayment(ctx, intent.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMismatch)
}

func TestCoordinator_FinalizeRegistrations(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campA := store.addCamp(5000)
	campB := store.addCamp(9000)
	resA := store.addReservation(campA, "holder@example.com", 15*time.Minute)
	resB := store.addReservation(campB, "holder@example.com", 15*time.Minute)
	c := newTestCoordinator(store, &fakeGateway{})

	regs, err := c.FinalizeRegistrations(ctx, []uuid.UUID{resA.ID, resB.ID}, "pay_ref_9")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	var total int64
	for _, reg := range regs {
		assert.Equal(t, domain.RegistrationAwaitingConfirmation, reg.Status)
		assert.Equal(t, "pay_ref_9", reg.PaymentRef)
		total += reg.AmountCents
	}
	assert.Equal(t, int64(14000), total)
	assert.Empty(t, store.reservations)

	_, err = c.FinalizeRegistrations(ctx, nil, "pay_ref_9")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCoordinator_FinalizeRejectsTerminalReservation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campID := store.addCamp(5000)
	good := store.addReservation(campID, "a@example.com", 15*time.Minute)
	bad := store.addReservation(campID, "b@example.com", 15*time.Minute)
	store.reservations[bad.ID].State = domain.ReservationCancelled
	c := newTestCoordinator(store, &fakeGateway{})

	_, err := c.FinalizeRegistrations(ctx, []uuid.UUID{bad.ID, good.ID}, "pay_ref_1")
	assert.ErrorIs(t, err, domain.ErrReservationNotPending)
	assert.Empty(t, store.registrations)
	assert.Equal(t, domain.ReservationPending, store.reservations[good.ID].State)
}

func TestCoordinator_RevokeRegistration(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	campID := store.addCamp(5000)
	store.camps[campID].Consumed = 1
	res := store.addReservation(campID, "holder@example.com", 15*time.Minute)
	c := newTestCoordinator(store, &fakeGateway{})

	regs, err := c.FinalizeRegistrations(ctx, []uuid.UUID{res.ID}, "pay_ref_2")
	require.NoError(t, err)
	require.Len(t, regs, 1)

	err = c.RevokeRegistration(ctx, regs[0].ID, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, c.RevokeRegistration(ctx, regs[0].ID, true))
	assert.Empty(t, store.registrations)
	assert.Equal(t, 0, store.camps[campID].Consumed)
}
