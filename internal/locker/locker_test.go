package locker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/billpay/internal/logging"
)

func exerciseExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "ref-1", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestLocalExclusion(t *testing.T) {
	exerciseExclusion(t, NewLocal())
}

func TestLocalDistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	done := make(chan struct{})
	err := l.WithLock(context.Background(), "a", func(context.Context) error {
		go func() {
			l.WithLock(context.Background(), "b", func(context.Context) error { return nil })
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(time.Second):
			return errors.New("key b blocked behind key a")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLocalCancelledWait(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})
	go l.WithLock(context.Background(), "k", func(context.Context) error {
		close(held)
		<-release
		return nil
	})
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}

func TestLocalReturnsFnError(t *testing.T) {
	boom := errors.New("boom")
	if err := NewLocal().WithLock(context.Background(), "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func newRedisLocker(t *testing.T, opts RedisOptions) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, opts, logging.Discard()), mr
}

func TestRedisExclusion(t *testing.T) {
	l, _ := newRedisLocker(t, RedisOptions{Prefix: "lock:", Expiry: 5 * time.Second, Tries: 200, RetryDelay: 5 * time.Millisecond})
	exerciseExclusion(t, l)
}

func TestRedisReleasesKey(t *testing.T) {
	l, mr := newRedisLocker(t, DefaultRedisOptions())
	err := l.WithLock(context.Background(), "ref-9", func(context.Context) error {
		if !mr.Exists("lock:ref-9") {
			t.Fatal("expected lock key while held")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with lock: %v", err)
	}
	if mr.Exists("lock:ref-9") {
		t.Fatal("expected lock key to be released")
	}
}

func TestRedisBusyLock(t *testing.T) {
	l, _ := newRedisLocker(t, RedisOptions{Prefix: "lock:", Expiry: 5 * time.Second, Tries: 2, RetryDelay: 5 * time.Millisecond})
	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		return l.WithLock(context.Background(), "k", func(context.Context) error {
			t.Fatal("nested holder must not acquire")
			return nil
		})
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}
