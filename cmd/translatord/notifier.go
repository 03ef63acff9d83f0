package main

import (
	"context"
	"sync"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/service"
)

// notifierRef - оповещатель, который можно подставить после сборки пайплайна.
// Пока он не задан, оповещения молча отбрасываются.
type notifierRef struct {
	mu sync.RWMutex
	n  service.Notifier
}

func (r *notifierRef) Set(n service.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n = n
}

func (r *notifierRef) get() service.Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

func (r *notifierRef) NotifyReview(ctx context.Context, review *domain.ManualReview) error {
	if n := r.get(); n != nil {
		return n.NotifyReview(ctx, review)
	}
	return nil
}

func (r *notifierRef) NotifyCircuit(ctx context.Context, dependency string, from, to circuit.State) error {
	if n := r.get(); n != nil {
		return n.NotifyCircuit(ctx, dependency, from, to)
	}
	return nil
}
