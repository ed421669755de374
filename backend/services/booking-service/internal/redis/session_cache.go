package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargeslot/backend/services/booking-service/internal/models"
)

// SessionCache keeps ACTIVE charging sessions in redis.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache returns redis-backed cache.
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{client: client, ttl: ttl}
}

func (c *SessionCache) key(sessionID int64) string {
	return fmt.Sprintf("sessions:active:%d", sessionID)
}

// Save caches session.
func (c *SessionCache) Save(ctx context.Context, session *models.ChargingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(session.ID), data, c.ttl).Err()
}

// Get returns cached session or nil on a miss.
func (c *SessionCache) Get(ctx context.Context, sessionID int64) (*models.ChargingSession, error) {
	result, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var session models.ChargingSession
	if err := json.Unmarshal(result, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes cached session.
func (c *SessionCache) Delete(ctx context.Context, sessionID int64) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
