package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, cfg Config) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewWithContext(context.Background(), cfg)
	c.now = clock.Now
	t.Cleanup(c.Stop)
	return c, clock
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	res := &domain.Result{RequestID: "r1", Output: "Привет", Status: domain.StatusAccepted}
	c.Set("key", res, 5*time.Second)

	got, ok := c.Get("key")
	if !ok {
		t.Fatal("Get() should return ok=true for existing key")
	}
	if got.(*domain.Result) != res {
		t.Errorf("Get() = %v, want %v", got, res)
	}
}

func TestCache_GetNonExistent(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	got, ok := c.Get("non-existent")
	if ok {
		t.Error("Get() should return ok=false for non-existent key")
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	c, clock := newTestCache(t, Config{})

	c.Set("expiring", "value", time.Minute)
	if _, ok := c.Get("expiring"); !ok {
		t.Error("Key should exist before TTL expiration")
	}

	clock.Advance(61 * time.Second)

	if _, ok := c.Get("expiring"); ok {
		t.Error("Key should be expired after TTL")
	}

	c.removeExpired()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", c.Len())
	}
}

func TestCache_ZeroTTLNotStored(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	c.Set("k", "v", 0)
	if _, ok := c.Get("k"); ok {
		t.Error("zero ttl must not store the value")
	}
}

func TestCache_DeleteAndOverwrite(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	c.Set("k", "v1", time.Hour)
	c.Set("k", "v2", time.Hour)
	if got, _ := c.Get("k"); got != "v2" {
		t.Errorf("Get() = %v, want v2 after overwrite", got)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Key should not exist after delete")
	}
}

func TestCache_MaxEntries(t *testing.T) {
	c, _ := newTestCache(t, Config{MaxEntries: 2})

	c.Set("short", 1, time.Minute)
	c.Set("long", 2, time.Hour)
	c.Set("new", 3, 30*time.Minute)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get("short"); ok {
		t.Error("entry expiring first should be evicted")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("long entry should survive")
	}

	// перезапись существующего ключа не вытесняет соседей
	c.Set("long", 4, time.Hour)
	if c.Len() != 2 {
		t.Errorf("Len() = %d after overwrite, want 2", c.Len())
	}
}

func TestCache_Stop(t *testing.T) {
	c := New()

	c.Stop()

	c.Stop()
}

func TestCache_NewWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewWithContext(ctx, Config{CleanupInterval: time.Millisecond})
	defer c.Stop()

	c.Set("ctx-key", "ctx-value", time.Hour)
	if got, ok := c.Get("ctx-key"); !ok || got != "ctx-value" {
		t.Error("Cache should work before context cancel")
	}

	cancel()
	time.Sleep(10 * time.Millisecond)

	c.Set("another", "value", time.Hour)
	if _, ok := c.Get("another"); !ok {
		t.Error("Cache should still work after context cancel")
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New()
	defer c.Stop()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Set("concurrent-key", i, time.Hour)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Get("concurrent-key")
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Delete("concurrent-key")
			time.Sleep(time.Microsecond)
		}
	}()

	wg.Wait()
}
