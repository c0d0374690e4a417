package collector

import (
	"context"
	"sync"
	"time"

	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/plan"
	"github.com/rs/zerolog/log"
)

// Latest keeps the newest value of every channel. Feed it from
// client.OnValue; it is safe for concurrent use.
type Latest struct {
	// Values older than MaxAge are left out of Snapshot. Zero keeps them forever.
	MaxAge time.Duration

	mu     sync.Mutex
	values map[plan.Channel]channel.Value

	first     chan struct{}
	firstOnce sync.Once
}

func NewLatest() *Latest {
	return &Latest{
		values: make(map[plan.Channel]channel.Value),
		first:  make(chan struct{}),
	}
}

func (l *Latest) Update(v channel.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.values[v.Channel]; ok && v.At.Before(prev.At) {
		log.Trace().Stringer("Value", v).Stringer("Newer", prev).Msg("collector: dropping out of order value")
		return
	}

	l.values[v.Channel] = v

	l.firstOnce.Do(func() {
		close(l.first)
	})
}

// Snapshot returns a copy of the current values, skipping stale ones.
func (l *Latest) Snapshot() map[plan.Channel]channel.Value {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[plan.Channel]channel.Value, len(l.values))
	now := time.Now()

	for ch, v := range l.values {
		if l.MaxAge > 0 && now.Sub(v.At) > l.MaxAge {
			continue
		}

		out[ch] = v
	}

	return out
}

func (l *Latest) Get(ch plan.Channel) (channel.Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.values[ch]
	return v, ok
}

// WaitFirst blocks until the first value arrived or ctx is done.
func (l *Latest) WaitFirst(ctx context.Context) error {
	select {
	case <-l.first:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
