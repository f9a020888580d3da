// Package redis persists the channel's page-address token in Redis, so a
// restarted agent can resume its directory session.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

const defaultPrefix = "parley"

// Store keeps one token per agent address under <prefix>:token:<address>.
type Store struct {
	client  goredis.UniversalClient
	address string
	prefix  string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewStore creates a token store for the given agent address.
func NewStore(client goredis.UniversalClient, address string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis store requires a client")
	}
	if address == "" {
		return nil, fmt.Errorf("redis store requires an agent address")
	}
	s := &Store{client: client, address: address, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) key() string {
	return fmt.Sprintf("%s:token:%s", s.prefix, s.address)
}

// Load returns the persisted token, or domain.ErrTokenNotFound.
func (s *Store) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// Store persists the token without expiry; the directory side decides when a
// page address dies.
func (s *Store) Store(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(), token, 0).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Clearing an absent token is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

var _ ports.TokenStore = (*Store)(nil)
