package ports

import "context"

// TokenStore persists the unique page address across restarts so a reconnect
// does not always require full re-registration.
// Load returns domain.ErrTokenNotFound when nothing is persisted.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Store(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
