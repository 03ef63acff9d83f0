package service

import (
	"context"
	"sync/atomic"
)

// requestState - то, что нужно провайдерскому раннеру и гейтам про текущий запрос
type requestState struct {
	attempts *atomic.Int32
	// maxRetries < 0 - как в политике категории
	maxRetries int
	critic     bool
	sourceLang string
	targetLang string
}

type stateKey struct{}

func withState(ctx context.Context, st *requestState) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

func stateFrom(ctx context.Context) *requestState {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		return st
	}
	return nil
}

// derive - состояние для побочных вызовов (кандидаты для сверки): счетчик общий
func (st *requestState) derive(maxRetries int) *requestState {
	cp := *st
	cp.maxRetries = maxRetries
	return &cp
}
