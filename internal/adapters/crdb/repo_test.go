package crdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSchema = `
	CREATE DATABASE IF NOT EXISTS camps;
	CREATE TABLE IF NOT EXISTS camps.camps (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		fee_cents INT8 NOT NULL,
		starts_at TIMESTAMPTZ,
		location TEXT,
		professional TEXT,
		capacity INT NOT NULL,
		consumed INT NOT NULL DEFAULT 0,
		created_by TEXT,
		CHECK (consumed >= 0),
		CHECK (consumed <= capacity)
	);
	CREATE TABLE IF NOT EXISTS camps.reservations (
		id UUID PRIMARY KEY,
		camp_id UUID,
		holder_email TEXT,
		state TEXT CHECK (state IN ('PENDING', 'CONFIRMED', 'EXPIRED', 'CANCELLED')),
		created_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		UNIQUE (camp_id, holder_email) WHERE state = 'PENDING'
	);
	CREATE TABLE IF NOT EXISTS camps.payment_intents (
		id TEXT PRIMARY KEY,
		reservation_id UUID,
		camp_id UUID,
		amount_cents INT8,
		currency TEXT,
		client_secret TEXT,
		state TEXT CHECK (state IN ('CREATED', 'SUCCEEDED', 'FAILED')),
		created_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS camps.registrations (
		id UUID PRIMARY KEY,
		camp_id UUID,
		holder_email TEXT,
		amount_cents INT8,
		payment_ref TEXT,
		status TEXT CHECK (status IN ('AWAITING_CONFIRMATION', 'CONFIRMED')),
		confirmed_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS camps.outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT,
		aggregate_id UUID,
		event_type TEXT,
		payload_json BYTES,
		created_at TIMESTAMPTZ DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT,
		dedupe_key TEXT
	);
`

func startRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/camps?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		t.Fatal(err)
	}
	return crdb.NewRepository(pool), pool
}

func createCamp(t *testing.T, repo *crdb.Repository, capacity int, feeCents int64) domain.Camp {
	t.Helper()
	camp, err := domain.NewCamp("Wellness Camp", feeCents, time.Now().Add(24*time.Hour), "Hall A", "Dr. Reyes", capacity, "admin@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateCamp(context.Background(), camp); err != nil {
		t.Fatal(err)
	}
	return camp
}

func TestRepository_AdmitOne(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)
	camp := createCamp(t, repo, 2, 5000)

	admit := func() (int, error) {
		var remaining int
		err := repo.WithTx(ctx, func(tx pgx.Tx) error {
			var err error
			remaining, err = repo.AdmitOne(ctx, tx, camp.ID)
			return err
		})
		return remaining, err
	}

	remaining, err := admit()
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if remaining != 1 {
		t.Errorf("expected 1 remaining, got %d", remaining)
	}

	if _, err := admit(); err != nil {
		t.Fatalf("second admit: %v", err)
	}

	if _, err := admit(); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Errorf("expected capacity error on full camp, got %v", err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.ReleaseOne(ctx, tx, camp.ID)
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := admit(); err != nil {
		t.Errorf("admit after release: %v", err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.AdmitOne(ctx, tx, uuid.New())
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found for unknown camp, got %v", err)
	}
}

func TestRepository_ConcurrentAdmission(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)

	const capacity = 5
	const contenders = 20
	camp := createCamp(t, repo, capacity, 5000)

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
				_, err := repo.AdmitOne(ctx, tx, camp.ID)
				return err
			})
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != capacity {
		t.Errorf("expected exactly %d admissions, got %d", capacity, admitted)
	}
	if rejected != contenders-capacity {
		t.Errorf("expected %d rejections, got %d", contenders-capacity, rejected)
	}

	fetched, err := repo.GetCamp(ctx, camp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Consumed != capacity {
		t.Errorf("expected consumed %d, got %d", capacity, fetched.Consumed)
	}
}

func TestRepository_UpdateCampCapacityFloor(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)
	camp := createCamp(t, repo, 10, 5000)

	for i := 0; i < 8; i++ {
		err := repo.WithTx(ctx, func(tx pgx.Tx) error {
			_, err := repo.AdmitOne(ctx, tx, camp.ID)
			return err
		})
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	// Shrinking below the consumed count must be refused.
	shrunk := camp
	shrunk.Capacity = 5
	if err := repo.UpdateCamp(ctx, shrunk); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid input shrinking below consumed, got %v", err)
	}
	fetched, err := repo.GetCamp(ctx, camp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Capacity != 10 || fetched.Consumed != 8 {
		t.Errorf("camp changed by rejected update: capacity %d consumed %d", fetched.Capacity, fetched.Consumed)
	}

	// Shrinking exactly to the consumed count is allowed and zeroes remaining.
	shrunk.Capacity = 8
	if err := repo.UpdateCamp(ctx, shrunk); err != nil {
		t.Fatalf("shrink to consumed: %v", err)
	}
	fetched, err = repo.GetCamp(ctx, camp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", fetched.Remaining())
	}
}

func TestRepository_DuplicateReservation(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)
	camp := createCamp(t, repo, 10, 5000)

	first := domain.NewReservation(camp.ID, "holder@example.com", 5*time.Minute)
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateReservation(ctx, tx, first)
	})
	if err != nil {
		t.Fatalf("first reservation: %v", err)
	}

	dup := domain.NewReservation(camp.ID, "holder@example.com", 5*time.Minute)
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateReservation(ctx, tx, dup)
	})
	if !errors.Is(err, domain.ErrDuplicateReservation) {
		t.Errorf("expected duplicate error, got %v", err)
	}

	// A cancelled hold no longer blocks a fresh one for the same pair.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		cancelled, err := repo.CancelReservation(ctx, tx, first.ID)
		if err != nil {
			return err
		}
		if !cancelled {
			t.Error("expected cancellation to apply")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	fresh := domain.NewReservation(camp.ID, "holder@example.com", 5*time.Minute)
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateReservation(ctx, tx, fresh)
	})
	if err != nil {
		t.Errorf("reservation after cancel: %v", err)
	}
}

func TestRepository_ConfirmVersusExpire(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)
	camp := createCamp(t, repo, 10, 5000)
	now := time.Now()

	res := domain.NewReservation(camp.ID, "race@example.com", 5*time.Minute)
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateReservation(ctx, tx, res)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Confirmation lands first; the sweep must then match zero rows.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.ConfirmReservation(ctx, tx, res.ID, now)
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		expired, err := repo.ExpireReservation(ctx, tx, res.ID, now.Add(10*time.Minute))
		if err != nil {
			return err
		}
		if expired {
			t.Error("sweep must not expire a confirmed reservation")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Past-deadline confirm is rejected as expired.
	late := domain.NewReservation(camp.ID, "late@example.com", -time.Minute)
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateReservation(ctx, tx, late)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.ConfirmReservation(ctx, tx, late.ID, time.Now())
	})
	if !errors.Is(err, domain.ErrReservationExpired) {
		t.Errorf("expected expired error, got %v", err)
	}
}

func TestRepository_TransitionIntent(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)
	camp := createCamp(t, repo, 10, 5000)

	intent := domain.PaymentIntent{
		ID:            "pi_test_123",
		ReservationID: uuid.New(),
		CampID:        camp.ID,
		AmountCents:   5000,
		Currency:      "usd",
		ClientSecret:  "secret",
		State:         domain.IntentCreated,
		CreatedAt:     time.Now(),
	}
	if err := repo.InsertIntent(ctx, intent); err != nil {
		t.Fatal(err)
	}

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		moved, err := repo.TransitionIntent(ctx, tx, intent.ID, domain.IntentSucceeded)
		if err != nil {
			return err
		}
		if !moved {
			t.Error("expected first transition to apply")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		moved, err := repo.TransitionIntent(ctx, tx, intent.ID, domain.IntentFailed)
		if err != nil {
			return err
		}
		if moved {
			t.Error("expected replayed transition to be a no-op")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	fetched, err := repo.GetIntent(ctx, intent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.State != domain.IntentSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", fetched.State)
	}
}

func TestRepository_ConfirmRegistration(t *testing.T) {
	ctx := context.Background()
	repo, _ := startRepo(t)
	camp := createCamp(t, repo, 10, 5000)

	res := domain.NewReservation(camp.ID, "reg@example.com", 5*time.Minute)
	reg := domain.NewRegistration(res, 5000, "pay_ref_1", domain.RegistrationAwaitingConfirmation)
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertRegistration(ctx, tx, reg)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.ConfirmRegistration(ctx, reg.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// Confirming again is idempotent.
	if err := repo.ConfirmRegistration(ctx, reg.ID); err != nil {
		t.Errorf("repeat confirm: %v", err)
	}

	count, revenue, err := repo.CountAndRevenue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || revenue != 5000 {
		t.Errorf("expected 1 registration and 5000 revenue, got %d and %d", count, revenue)
	}

	// A confirmed registration cannot be revoked.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.DeleteRegistration(ctx, tx, reg.ID)
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict on revoking confirmed registration, got %v", err)
	}
}
