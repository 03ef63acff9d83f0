package circuit

import (
	"sort"
	"sync"
)

// Registry - единственный владелец брейкеров: не больше одного на зависимость.
// Создание ленивое, удаления нет.
type Registry struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

func (r *Registry) GetOrCreate(dependency string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[dependency]; ok {
		return b
	}
	b := NewBreaker(dependency, r.cfg, r.opts...)
	r.breakers[dependency] = b
	return b
}

func (r *Registry) lookup(dependency string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[dependency]
	return b, ok
}

// State для незнакомой зависимости - Closed, брейкер при этом не создается.
func (r *Registry) State(dependency string) State {
	if b, ok := r.lookup(dependency); ok {
		return b.State()
	}
	return StateClosed
}

// Reset возвращает false, если такой зависимости еще не было.
func (r *Registry) Reset(dependency string) bool {
	b, ok := r.lookup(dependency)
	if !ok {
		return false
	}
	b.Reset()
	return true
}

func (r *Registry) ResetAll() {
	for _, b := range r.all() {
		b.Reset()
	}
}

// Snapshots отсортированы по имени зависимости
func (r *Registry) Snapshots() []Snapshot {
	breakers := r.all()
	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dependency < out[j].Dependency })
	return out
}

func (r *Registry) all() []*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
