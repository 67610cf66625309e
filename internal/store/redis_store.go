package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"saga-server/internal/models"
)

// Compile-time check
var _ SessionStore = (*RedisStore)(nil)

// RedisStore keeps each session as a JSON document under session:{code} and
// publishes every new snapshot on session.updates.{code}. A TTL keeps
// abandoned sessions from accumulating.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed SessionStore and verifies the
// connection with a ping.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisStore"),
	}, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func updatesChannel(id string) string {
	return "session.updates." + id
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return models.ErrSessionExists
	}

	s.logger.Debug("Session created", zap.String("sessionId", session.ID))
	return s.publish(ctx, session.ID, data)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) Put(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return s.publish(ctx, session.ID, data)
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan *models.Session, error) {
	sub := s.client.Subscribe(ctx, updatesChannel(id))

	// Receive forces the SUBSCRIBE round-trip so no update published after
	// this call returns can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to session updates: %w", err)
	}

	out := make(chan *models.Session, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var session models.Session
				if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
					s.logger.Warn("Dropping malformed session update",
						zap.String("sessionId", id), zap.Error(err))
					continue
				}
				select {
				case out <- &session:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) publish(ctx context.Context, id string, data []byte) error {
	if err := s.client.Publish(ctx, updatesChannel(id), data).Err(); err != nil {
		return fmt.Errorf("failed to publish session update: %w", err)
	}
	return nil
}
