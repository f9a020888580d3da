package ports

import "context"

// Registration is the identity an agent presents to the directory service.
type Registration struct {
	Address      string
	DeclaredName string
	APIKey       string
}

// Session is the directory-side handle obtained by registering. The page
// address survives restarts when persisted through a TokenStore.
type Session struct {
	PageAddress string
}

// SearchQuery selects agents around the caller.
type SearchQuery struct {
	RangeKM float64
	Filters map[string][]string
}

// Endpoint is the capability the channel consumes to talk to the external
// directory service. Implementations own the concrete transport; failures
// must map to domain.ErrUnreachable or domain.ErrBadResponse. All calls may
// block and are expected to honour the context deadline.
type Endpoint interface {
	// Connect probes reachability of the service.
	Connect(ctx context.Context) error

	// Disconnect releases any transport resources.
	Disconnect(ctx context.Context) error

	// Register performs the registration handshake and returns a session.
	Register(ctx context.Context, reg Registration) (Session, error)

	// Unregister says goodbye, invalidating the session.
	Unregister(ctx context.Context, session Session) error

	// Search finds agent addresses matching the query.
	Search(ctx context.Context, session Session, q SearchQuery) ([]string, error)

	// Ping checks the session is still alive on the service.
	Ping(ctx context.Context, session Session) error

	// Call issues a generic pass-through command and returns the raw reply.
	Call(ctx context.Context, session Session, command string, params map[string]string) (string, error)
}
