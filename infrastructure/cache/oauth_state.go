package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

type OAuthStateStore struct {
	client redis.Cmdable
	prefix string
}

func NewOAuthStateStore(client redis.Cmdable, prefix string) *OAuthStateStore {
	if prefix == "" {
		prefix = "adsync:oauth:state"
	}
	return &OAuthStateStore{client: client, prefix: prefix}
}

func (s *OAuthStateStore) Save(ctx context.Context, state string, payload dto.OAuthState, ttl time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(state), raw, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("oauth state already in use")
	}
	return nil
}

func (s *OAuthStateStore) Consume(ctx context.Context, state string) (*dto.OAuthState, error) {
	raw, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("oauth state: %w", apperror.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var payload dto.OAuthState
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (s *OAuthStateStore) key(state string) string {
	return s.prefix + ":" + state
}
