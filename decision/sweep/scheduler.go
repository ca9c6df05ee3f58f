package sweep

import (
	"context"
	"fmt"
	"time"
)

// RunEvery sweeps immediately and then on every tick until ctx is cancelled.
// A failed sweep is logged and the loop keeps going.
func (r *Repricer) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Logger.Info().Dur("interval", interval).Msg("Background re-pricer is active")

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.Logger.Error().Err(err).Msg("Scheduled sweep failed")
		}

		select {
		case <-ctx.Done():
			r.Logger.Info().Msg("Background re-pricer stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
