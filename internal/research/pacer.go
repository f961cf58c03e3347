package research

import (
	"context"
	"sync"
	"time"
)

// fetchPacer spaces outbound page reads by a minimum interval so
// concurrent sub-question retrieval does not hammer upstream sites.
// A nil pacer never waits.
type fetchPacer struct {
	minInterval time.Duration

	mu            sync.Mutex
	nextAllowedAt time.Time
}

func newFetchPacer(minInterval time.Duration) *fetchPacer {
	if minInterval <= 0 {
		return nil
	}
	return &fetchPacer{minInterval: minInterval}
}

func (p *fetchPacer) wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		p.mu.Lock()
		now := time.Now()
		if p.nextAllowedAt.IsZero() || !p.nextAllowedAt.After(now) {
			p.nextAllowedAt = now.Add(p.minInterval)
			p.mu.Unlock()
			return nil
		}
		delay := time.Until(p.nextAllowedAt)
		p.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
