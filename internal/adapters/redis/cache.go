package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetReservationLock is a fast-path duplicate filter for (camp, holder). The
// partial unique index on reservations stays authoritative; this only spares
// the store an obviously doomed transaction.
func (c *Cache) SetReservationLock(ctx context.Context, campID, holderEmail, reservationID string, ttl time.Duration) (bool, error) {
	key := "resv:" + campID + ":" + holderEmail
	res := c.client.SetNX(ctx, key, reservationID, ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseReservationLock(ctx context.Context, campID, holderEmail string) error {
	return c.client.Del(ctx, "resv:"+campID+":"+holderEmail).Err()
}

const campListKey = "camps:list"

func (c *Cache) GetCampList(ctx context.Context) ([]domain.Camp, error) {
	val, err := c.client.Get(ctx, campListKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var camps []domain.Camp
	if err := json.Unmarshal(val, &camps); err != nil {
		return nil, err
	}
	return camps, nil
}

func (c *Cache) SetCampList(ctx context.Context, camps []domain.Camp, ttl time.Duration) error {
	data, err := json.Marshal(camps)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, campListKey, data, ttl).Err()
}

func (c *Cache) InvalidateCampList(ctx context.Context) error {
	return c.client.Del(ctx, campListKey).Err()
}
