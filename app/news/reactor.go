package news

import (
	"context"
	"sync"

	"golang.org/x/exp/slog"
)

// Rebuilder re-assembles a user's feed.
type Rebuilder interface {
	Rebuild(ctx context.Context, userID string) error
}

// Reactor listens for cache expirations and proactively rebuilds evicted
// feeds, so active users rarely hit a cold cache. It shares no state with
// request handlers other than the cache itself.
type Reactor struct {
	Logger    *slog.Logger
	Expired   <-chan string
	Rebuilder Rebuilder
}

// Run consumes expiry notifications until the context is cancelled. Each
// rebuild is fire-and-forget: no request is waiting on it, failures are
// logged and otherwise dropped, and the next cold read retries from
// scratch.
func (r *Reactor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case key := <-r.Expired:
			userID, ok := UserID(key)
			if !ok {
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := r.Rebuilder.Rebuild(ctx, userID); err != nil {
					r.Logger.WarnCtx(ctx, "failed to rebuild feed",
						slog.String("user_id", userID), slog.Any("err", err))
					return
				}

				r.Logger.DebugCtx(ctx, "rebuilt feed after expiry",
					slog.String("user_id", userID))
			}()
		}
	}
}
