package http

import (
	"context"
	"time"

	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/rs/zerolog/log"
)

func sweepLimiter(ctx context.Context, rl *signal.RoomRateLimiter, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rl.Sweep(); n > 0 {
				log.Debug().Str("module", "adapters.http").Int("keys", n).Msg("rate limiter swept")
			}
		}
	}
}
