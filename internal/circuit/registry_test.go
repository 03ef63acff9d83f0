package circuit

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make(map[*Breaker]struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := r.GetOrCreate("openrouter")
			mu.Lock()
			got[b] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(got) != 1 {
		t.Errorf("GetOrCreate produced %d instances, want 1", len(got))
	}
}

func TestRegistry_IndependentContexts(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	r.GetOrCreate("openrouter").RecordFailure()

	if r.State("openrouter") != StateOpen {
		t.Errorf("openrouter state = %s, want open", r.State("openrouter"))
	}
	if r.State("gigachat") != StateClosed {
		t.Errorf("gigachat state = %s, want closed", r.State("gigachat"))
	}
	if !r.GetOrCreate("gigachat").CanAttempt() {
		t.Error("gigachat should not be affected by openrouter failures")
	}
}

func TestRegistry_ResetAndSnapshots(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	r.GetOrCreate("b").RecordFailure()
	r.GetOrCreate("a").RecordFailure()

	if r.Reset("missing") {
		t.Error("Reset() of unknown dependency should return false")
	}
	if !r.Reset("a") {
		t.Error("Reset(a) = false")
	}
	if r.State("a") != StateClosed {
		t.Errorf("a state = %s, want closed", r.State("a"))
	}

	snaps := r.Snapshots()
	if len(snaps) != 2 || snaps[0].Dependency != "a" || snaps[1].Dependency != "b" {
		t.Fatalf("Snapshots() = %+v", snaps)
	}
	if snaps[1].State != StateOpen {
		t.Errorf("b state = %s, want open", snaps[1].State)
	}

	r.ResetAll()
	for _, s := range r.Snapshots() {
		if s.State != StateClosed {
			t.Errorf("%s state = %s after ResetAll", s.Dependency, s.State)
		}
	}
}

func TestRegistry_StateDoesNotCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	_ = r.State("ghost")
	if len(r.Snapshots()) != 0 {
		t.Error("State() should not create a breaker")
	}
}
