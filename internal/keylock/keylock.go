// Package keylock provides mutual exclusion keyed by aggregate id.  Each
// key owns a one-slot semaphore so that acquisition can observe a context
// and give up after a bounded number of backoff rounds.
package keylock

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/metrics"
)

// Config bounds how long Lock waits for a held key.  The total wait is
// InitialBackoff × (2^Attempts − 1).
type Config struct {
	Attempts       int
	InitialBackoff time.Duration
}

// DefaultConfig waits at most ~62ms.
func DefaultConfig() Config {
	return Config{Attempts: 5, InitialBackoff: 2 * time.Millisecond}
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Locker hands out per-key locks.  Entries are reference counted and
// dropped once nobody holds or waits for them.
type Locker struct {
	cfg     Config
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a Locker.  Non-positive fields fall back to DefaultConfig.
func New(cfg Config) *Locker {
	def := DefaultConfig()
	if cfg.Attempts < 1 {
		cfg.Attempts = def.Attempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	return &Locker{cfg: cfg, entries: make(map[string]*entry)}
}

func (l *Locker) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) releaseEntry(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock acquires key.  On success it returns the unlock function, which
// is safe to call more than once.  It fails with a Cancelled error when
// ctx is done first or when every backoff round found the key held.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireEntry(key)
	if err := ctx.Err(); err != nil {
		l.releaseEntry(key, e)
		metrics.LockTimeouts.Inc()
		return nil, apperr.Wrap(apperr.KindCancelled, err, "lock %s", key)
	}

	unlock := func() func() {
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.releaseEntry(key, e)
			})
		}
	}()

	select {
	case e.sem <- struct{}{}:
		return unlock, nil
	default:
	}

	wait := l.cfg.InitialBackoff
	for attempt := 0; attempt < l.cfg.Attempts; attempt++ {
		metrics.LockContention.Inc()
		timer := time.NewTimer(wait)
		select {
		case e.sem <- struct{}{}:
			timer.Stop()
			return unlock, nil
		case <-ctx.Done():
			timer.Stop()
			l.releaseEntry(key, e)
			metrics.LockTimeouts.Inc()
			return nil, apperr.Wrap(apperr.KindCancelled, ctx.Err(), "lock %s", key)
		case <-timer.C:
		}
		wait *= 2
	}
	l.releaseEntry(key, e)
	metrics.LockTimeouts.Inc()
	return nil, apperr.New(apperr.KindCancelled, "lock %s busy after %d attempts", key, l.cfg.Attempts)
}

// Len returns the number of live entries.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
