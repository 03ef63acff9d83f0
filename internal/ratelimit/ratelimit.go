package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLimiterStopped = errors.New("rate limiter stopped")

// Limiter - клиентский лимит запросов к провайдеру (sliding window).
// Ключ - имя провайдера.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	perKey   map[string]int
	window   time.Duration
	now      func() time.Time
	onWait   func(key string)

	stopOnce sync.Once
	stop     chan struct{}
}

type Config struct {
	RequestsPerMinute int
	// PerKey переопределяет лимит для отдельных провайдеров
	PerKey map[string]int
	// OnWait вызывается, когда запросу пришлось ждать окна
	OnWait func(key string)
}

func New(cfg Config) *Limiter {
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = 10
	}

	perKey := make(map[string]int, len(cfg.PerKey))
	for k, v := range cfg.PerKey {
		if v > 0 {
			perKey[k] = v
		}
	}

	l := &Limiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		perKey:   perKey,
		window:   time.Minute,
		now:      time.Now,
		onWait:   cfg.OnWait,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) limitFor(key string) int {
	if v, ok := l.perKey[key]; ok {
		return v
	}
	return l.limit
}

// freshLocked оставляет только запросы внутри окна
func (l *Limiter) freshLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	old := l.requests[key]
	fresh := old[:0] // reuse underlying array
	for _, t := range old {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	l.requests[key] = fresh
	return fresh
}

func (l *Limiter) Allow(key string) bool {
	_, ok := l.reserve(key)
	return ok
}

// reserve либо занимает слот, либо говорит, сколько ждать до освобождения
func (l *Limiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	fresh := l.freshLocked(key, now)
	if len(fresh) >= l.limitFor(key) {
		oldest := fresh[0]
		for _, t := range fresh[1:] {
			if t.Before(oldest) {
				oldest = t
			}
		}
		return oldest.Add(l.window).Sub(now), false
	}

	l.requests[key] = append(fresh, now)
	return 0, true
}

// Wait блокируется до свободного слота или отмены контекста.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	waited := false
	for {
		wait, ok := l.reserve(key)
		if ok {
			return nil
		}
		if !waited {
			waited = true
			if l.onWait != nil {
				l.onWait(key)
			}
		}
		if wait <= 0 {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-l.stop:
			timer.Stop()
			return ErrLimiterStopped
		case <-timer.C:
		}
	}
}

func (l *Limiter) RemainingRequests(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	cnt := 0
	for _, t := range l.requests[key] {
		if t.After(cutoff) {
			cnt++
		}
	}

	if rem := l.limitFor(key) - cnt; rem > 0 {
		return rem
	}
	return 0
}

// ResetTime - когда лимит сбросится (приблизительно)
func (l *Limiter) ResetTime(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.requests[key]
	if len(ts) == 0 {
		return l.now()
	}

	// ищем самый старый timestamp
	oldest := ts[0]
	for _, t := range ts[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest.Add(l.window)
}

// Stop останавливает фоновую очистку и будит всех ожидающих.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// cleanup - фоновая очистка старых записей
func (l *Limiter) cleanup() {
	tick := time.NewTicker(5 * time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-tick.C:
		}

		l.mu.Lock()
		cutoff := l.now().Add(-l.window)
		for key, ts := range l.requests {
			var fresh []time.Time
			for _, t := range ts {
				if t.After(cutoff) {
					fresh = append(fresh, t)
				}
			}
			if len(fresh) == 0 {
				delete(l.requests, key)
			} else {
				l.requests[key] = fresh
			}
		}
		l.mu.Unlock()
	}
}
