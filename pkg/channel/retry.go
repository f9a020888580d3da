package channel

import (
	"context"
	"fmt"
	"log/slog"

	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// RetryPolicy bounds how a channel retries its connection handshake.
// Attempts of zero means retry forever.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// run invokes fn until it succeeds, the policy is exhausted, or the context
// is done. Exhaustion is reported as domain.ErrConnectAttemptsExhausted.
func (p RetryPolicy) run(ctx context.Context, sleeper ports.Sleeper, logger *slog.Logger, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("attempt failed, retrying",
			"op", op, "attempt", attempt, "delay", p.Delay.String(), "err", err)
		if p.Attempts > 0 && attempt >= p.Attempts {
			return fmt.Errorf("%w: %s failed after %d attempts: %v",
				domain.ErrConnectAttemptsExhausted, op, attempt, err)
		}
		if serr := sleeper.Sleep(ctx, p.Delay); serr != nil {
			return serr
		}
	}
}
