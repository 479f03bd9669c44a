package node

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/raterudder/vrmapi/pkg/log"
)

// DefaultPollInterval is used when StartPoller is given a non-positive
// interval.
const DefaultPollInterval = time.Minute

// ResultFunc receives every result a poller produces, except rate limited
// ones.
type ResultFunc func(ctx context.Context, n *Node, res Result)

// StartPoller handles an empty message on n immediately and then once per
// interval until ctx is done. The returned channel is closed when the poller
// exits.
func StartPoller(ctx context.Context, n *Node, interval time.Duration, fn ResultFunc) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	done := make(chan struct{})

	tick := func() {
		res, err := n.Handle(ctx, Message{})
		if errors.Is(err, ErrRateLimited) {
			log.Ctx(ctx).DebugContext(ctx, "skipping rate limited poll", slog.String("node", n.Name()))
			return
		}
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "poll failed", slog.String("node", n.Name()), slog.Any("error", err))
		}
		if fn != nil {
			fn(ctx, n, res)
		}
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
	return done
}
