package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New(Config{Attempts: 20, InitialBackoff: time.Millisecond})
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				unlock, err := l.Lock(ctx, "sale:1")
				if err != nil {
					continue
				}
				v := counter
				time.Sleep(10 * time.Microsecond)
				counter = v + 1
				unlock()
				return
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.Len())
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	l := New(Config{Attempts: 1, InitialBackoff: time.Millisecond})
	ctx := context.Background()

	u1, err := l.Lock(ctx, "sale:1")
	require.NoError(t, err)
	defer u1()
	u2, err := l.Lock(ctx, "sale:2")
	require.NoError(t, err)
	u2()
}

func TestLockGivesUpAfterAttempts(t *testing.T) {
	l := New(Config{Attempts: 2, InitialBackoff: time.Millisecond})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(ctx, "k")
	assert.True(t, apperr.IsKind(err, apperr.KindCancelled))
}

func TestLockHonoursDeadline(t *testing.T) {
	l := New(Config{Attempts: 10, InitialBackoff: time.Second})
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = l.Lock(ctx, "k")
	assert.True(t, apperr.IsKind(err, apperr.KindCancelled))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLockCancelledContext(t *testing.T) {
	l := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Lock(ctx, "k")
	assert.True(t, apperr.IsKind(err, apperr.KindCancelled))
	assert.Equal(t, 0, l.Len())
}

func TestUnlockIsIdempotent(t *testing.T) {
	l := New(DefaultConfig())
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}
