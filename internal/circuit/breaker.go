package circuit

import (
	"errors"
	"sync"
	"time"
)

var ErrInvalidConfig = errors.New("invalid circuit breaker config")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.FailureThreshold < 1 || c.SuccessThreshold < 1 || c.Timeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// StateChangeFunc вызывается вне лока брейкера
type StateChangeFunc func(dependency string, from, to State)

// Snapshot - состояние для дашбордов
type Snapshot struct {
	Dependency           string
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailure          time.Time
}

// Breaker - автомат Closed/Open/HalfOpen для одной зависимости
type Breaker struct {
	dependency string
	cfg        Config
	now        func() time.Time
	onChange   StateChangeFunc

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

func NewBreaker(dependency string, cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	b := &Breaker{
		dependency: dependency,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type Option func(*Breaker)

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

func (b *Breaker) Dependency() string { return b.dependency }

// CanAttempt в Open переводит брейкер в HalfOpen, если таймаут истек.
// Переход - побочный эффект чтения, отдельного тика нет.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	switch b.state {
	case StateClosed, StateHalfOpen:
		b.mu.Unlock()
		return true
	}

	if b.now().Sub(b.lastFailure) < b.cfg.Timeout {
		b.mu.Unlock()
		return false
	}
	from := b.transition(StateHalfOpen)
	b.mu.Unlock()

	b.notify(from, StateHalfOpen)
	return true
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var (
		from    State
		changed bool
	)
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			from, changed = b.transition(StateClosed), true
		}
	case StateOpen:
		// поздний ответ на запрос, начатый до открытия; состояние не трогаем
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var (
		from    State
		changed bool
	)
	now := b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			from, changed = b.transition(StateOpen), true
			b.lastFailure = now
		}
	case StateHalfOpen:
		from, changed = b.transition(StateOpen), true
		b.lastFailure = now
	case StateOpen:
		// таймаут отсчитывается от момента открытия
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, StateOpen)
	}
}

// Reset принудительно закрывает брейкер и обнуляет счетчики.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.transition(StateClosed)
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// State не меняет состояние, в отличие от CanAttempt.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Dependency:           b.dependency,
		State:                b.state,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastFailure:          b.lastFailure,
	}
}

// transition вызывается под локом, счетчики обнуляются на каждом переходе
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	return from
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil && from != to {
		b.onChange(b.dependency, from, to)
	}
}
