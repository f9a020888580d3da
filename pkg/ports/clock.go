package ports

import (
	"context"
	"time"
)

// Sleeper abstracts time delays so retry and watchdog loops are testable
// without real time passing.
type Sleeper interface {
	// Sleep waits for d or until the context is done, returning ctx.Err in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on the wall clock.
type RealSleeper struct{}

// Sleep implements Sleeper.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
