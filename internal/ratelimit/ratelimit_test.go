package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 3,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		if !limiter.Allow("openrouter") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if limiter.Allow("openrouter") {
		t.Error("Fourth request should be blocked due to rate limit")
	}
}

func TestLimiter_DifferentProviders(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 1,
		PerKey:            map[string]int{"gigachat": 2},
	})
	defer limiter.Stop()

	if !limiter.Allow("openrouter") {
		t.Error("openrouter first request should be allowed")
	}
	if limiter.Allow("openrouter") {
		t.Error("openrouter second request should be blocked")
	}

	if !limiter.Allow("gigachat") || !limiter.Allow("gigachat") {
		t.Error("gigachat has its own limit of 2")
	}
	if limiter.Allow("gigachat") {
		t.Error("gigachat third request should be blocked")
	}
}

func TestLimiter_RemainingRequests(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 5,
	})
	defer limiter.Stop()

	if remaining := limiter.RemainingRequests("openrouter"); remaining != 5 {
		t.Errorf("RemainingRequests() = %d, want 5", remaining)
	}

	limiter.Allow("openrouter")
	limiter.Allow("openrouter")
	limiter.Allow("openrouter")

	if remaining := limiter.RemainingRequests("openrouter"); remaining != 2 {
		t.Errorf("RemainingRequests() = %d, want 2", remaining)
	}
}

func TestLimiter_ResetTime(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 1})
	defer limiter.Stop()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("gigachat")

	if got := limiter.ResetTime("gigachat"); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("ResetTime() = %v, want %v", got, now.Add(time.Minute))
	}
}

func TestLimiter_DefaultConfig(t *testing.T) {
	limiter := New(Config{})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		if !limiter.Allow("p") {
			t.Errorf("Request %d should be allowed with default config", i+1)
		}
	}

	if limiter.Allow("p") {
		t.Error("11th request should be blocked")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	var waits atomic.Int32
	limiter := New(Config{
		RequestsPerMinute: 1,
		OnWait:            func(string) { waits.Add(1) },
	})
	defer limiter.Stop()

	if err := limiter.Wait(context.Background(), "openrouter"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "openrouter"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if waits.Load() != 1 {
		t.Errorf("OnWait called %d times, want 1", waits.Load())
	}
}

func TestLimiter_WaitUntilWindowSlides(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 1})
	defer limiter.Stop()
	limiter.window = 30 * time.Millisecond

	start := time.Now()
	limiter.Wait(context.Background(), "p")
	if err := limiter.Wait(context.Background(), "p"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("second Wait() returned after %v, expected to wait for the window", elapsed)
	}
}

func TestLimiter_StopWakesWaiters(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 1})
	limiter.Allow("p")

	errCh := make(chan error, 1)
	go func() { errCh <- limiter.Wait(context.Background(), "p") }()

	time.Sleep(10 * time.Millisecond)
	limiter.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrLimiterStopped) {
			t.Errorf("Wait() error = %v, want ErrLimiterStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Stop()")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 100,
	})
	defer limiter.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				limiter.Allow("openrouter")
			}
		}()
	}
	wg.Wait()

	if remaining := limiter.RemainingRequests("openrouter"); remaining != 0 {
		t.Errorf("RemainingRequests() = %d, want 0 after concurrent access", remaining)
	}
}
