package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAuthFailed    = errors.New("authentication failed")
	ErrRequestFailed = errors.New("request failed")
	ErrEmptyResponse = errors.New("empty response")
	ErrRateLimit     = errors.New("rate limit exceeded")
	ErrUnavailable   = errors.New("provider unavailable")
	ErrOverloaded    = errors.New("provider overloaded")
)

type Client interface {
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)
}

// Named - клиент знает имя своего провайдера (для цепей и лимитов)
type Named interface {
	Name() string
}

// ModelSwitcher - провайдер с несколькими моделями (OpenRouter)
type ModelSwitcher interface {
	WithModel(model string) Client
}

// APIError - ответ провайдера с ошибкой. Методы StatusCode, ProviderCode,
// RetryAfterHint и Details читает классификатор сбоев.
type APIError struct {
	Provider   string
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
	// Err - один из сентинелов пакета
	Err error
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Provider)
	sb.WriteString(": ")
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString("api error")
	}
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (status %d", e.Status)
		if e.Code != "" {
			fmt.Fprintf(&sb, ", code %s", e.Code)
		}
		sb.WriteString(")")
	} else if e.Code != "" {
		fmt.Fprintf(&sb, " (code %s)", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	return sb.String()
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) ProviderCode() string { return e.Code }

func (e *APIError) RetryAfterHint() time.Duration { return e.RetryAfter }

func (e *APIError) Details() string { return e.Message }
