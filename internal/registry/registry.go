// Package registry owns camp metadata and the authoritative capacity
// counter. Admission and release go through single conditional updates in the
// store; no in-process counter is ever trusted.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	redisadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/redis"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
)

const listCacheTTL = 30 * time.Second

type Store interface {
	CreateCamp(ctx context.Context, camp domain.Camp) error
	GetCamp(ctx context.Context, id uuid.UUID) (*domain.Camp, error)
	ListCamps(ctx context.Context) ([]domain.Camp, error)
	UpdateCamp(ctx context.Context, camp domain.Camp) error
	DeleteCamp(ctx context.Context, id uuid.UUID) error
	AdmitOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	ReleaseOne(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type Registry struct {
	store  Store
	cache  *redisadapter.Cache
	logger observability.Logger
}

func NewRegistry(store Store, cache *redisadapter.Cache, logger observability.Logger) *Registry {
	return &Registry{store: store, cache: cache, logger: logger}
}

type CampInput struct {
	Name         string
	FeeCents     int64
	StartsAt     time.Time
	Location     string
	Professional string
	Capacity     int
}

func (r *Registry) Create(ctx context.Context, in CampInput, createdBy string) (*domain.Camp, error) {
	camp, err := domain.NewCamp(in.Name, in.FeeCents, in.StartsAt, in.Location, in.Professional, in.Capacity, createdBy)
	if err != nil {
		return nil, err
	}
	if err := r.store.CreateCamp(ctx, camp); err != nil {
		return nil, err
	}
	r.invalidate(ctx)
	return &camp, nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*domain.Camp, error) {
	return r.store.GetCamp(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]domain.Camp, error) {
	if r.cache != nil {
		if camps, err := r.cache.GetCampList(ctx); err == nil && camps != nil {
			return camps, nil
		}
	}
	camps, err := r.store.ListCamps(ctx)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.SetCampList(ctx, camps, listCacheTTL); err != nil {
			r.logger.WithError(err).Warn("failed to cache camp list")
		}
	}
	return camps, nil
}

func (r *Registry) Update(ctx context.Context, camp domain.Camp) error {
	if camp.Capacity <= 0 || camp.FeeCents < 0 {
		return domain.ErrInvalidInput
	}
	if err := r.store.UpdateCamp(ctx, camp); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// Delete refuses to remove a camp while any slot is consumed.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.DeleteCamp(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// AdmitOne atomically consumes one slot. The transaction commits before the
// caller is acknowledged, so a crash cannot lose or duplicate capacity.
func (r *Registry) AdmitOne(ctx context.Context, id uuid.UUID) (int, error) {
	var remaining int
	err := r.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		remaining, err = r.store.AdmitOne(ctx, tx, id)
		return err
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *Registry) ReleaseOne(ctx context.Context, id uuid.UUID) error {
	return r.store.WithTxRetry(ctx, func(tx pgx.Tx) error {
		return r.store.ReleaseOne(ctx, tx, id)
	})
}

func (r *Registry) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateCampList(ctx); err != nil {
		r.logger.WithError(err).Warn("failed to invalidate camp list cache")
	}
}
