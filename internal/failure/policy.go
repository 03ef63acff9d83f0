package failure

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrMissingPolicy     = errors.New("policy table is missing a kind")
	ErrInvalidPolicy     = errors.New("invalid recovery policy")
	ErrUnknownPolicyKind = errors.New("policy for unknown kind")
)

// Action - что делать со сбоем
type Action string

const (
	ActionRetry    Action = "retry"
	ActionFallback Action = "fallback"
	ActionFixInput Action = "fix_input"
	ActionFail     Action = "fail"
)

// Policy - статическая политика восстановления для одной категории
type Policy struct {
	Action            Action
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	UsesFallback      bool
	IsFatal           bool
	Description       string
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: negative max retries", ErrInvalidPolicy)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidPolicy)
	}
	if p.BackoffMultiplier < 1 && p.MaxRetries > 0 {
		return fmt.Errorf("%w: backoff multiplier below 1", ErrInvalidPolicy)
	}
	return nil
}

// Retryable - можно ли повторять запрос без изменений
func (p Policy) Retryable() bool {
	return !p.IsFatal && p.MaxRetries > 0 && p.Action != ActionFixInput && p.Action != ActionFail
}

// Override - точечная замена числовых полей на один вызов.
// nil означает "оставить как в таблице".
type Override struct {
	MaxRetries        *int
	BaseDelay         *time.Duration
	BackoffMultiplier *float64
	MaxDelay          *time.Duration
}

func (o Override) IsZero() bool {
	return o.MaxRetries == nil && o.BaseDelay == nil && o.BackoffMultiplier == nil && o.MaxDelay == nil
}

// Apply возвращает копию политики с примененными переопределениями.
func (p Policy) Apply(o Override) Policy {
	if o.MaxRetries != nil && *o.MaxRetries >= 0 {
		p.MaxRetries = *o.MaxRetries
	}
	if o.BaseDelay != nil && *o.BaseDelay >= 0 {
		p.BaseDelay = *o.BaseDelay
	}
	if o.BackoffMultiplier != nil && *o.BackoffMultiplier >= 1 {
		p.BackoffMultiplier = *o.BackoffMultiplier
	}
	if o.MaxDelay != nil && *o.MaxDelay >= 0 {
		p.MaxDelay = *o.MaxDelay
	}
	return p
}

// UnjitteredDelay = base * multiplier^(attempt-1), не больше MaxDelay.
func (p Policy) UnjitteredDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// PolicyTable - неизменяемая таблица kind -> policy, собирается один раз при старте
type PolicyTable struct {
	policies map[Kind]Policy
}

// NewPolicyTable копирует переданные политики. Таблица должна покрывать все Kinds().
func NewPolicyTable(policies map[Kind]Policy) (*PolicyTable, error) {
	t := &PolicyTable{policies: make(map[Kind]Policy, len(allKinds))}
	for k, p := range policies {
		if !k.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPolicyKind, k)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		t.policies[k] = p
	}
	for _, k := range allKinds {
		if _, ok := t.policies[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPolicy, k)
		}
	}
	return t, nil
}

// Lookup возвращает копию политики; неизвестная категория получает политику Unknown.
func (t *PolicyTable) Lookup(k Kind) Policy {
	if p, ok := t.policies[k]; ok {
		return p
	}
	return t.policies[KindUnknown]
}

// WithPolicy возвращает новую таблицу с замененной политикой, исходная не меняется.
func (t *PolicyTable) WithPolicy(k Kind, p Policy) (*PolicyTable, error) {
	next := make(map[Kind]Policy, len(t.policies))
	for kind, policy := range t.policies {
		next[kind] = policy
	}
	next[k] = p
	return NewPolicyTable(next)
}

func DefaultPolicies() *PolicyTable {
	t, err := NewPolicyTable(defaultPolicies())
	if err != nil {
		panic(fmt.Sprintf("failure: default policy table: %v", err))
	}
	return t
}

func defaultPolicies() map[Kind]Policy {
	fatal := func(desc string) Policy {
		return Policy{Action: ActionFail, BackoffMultiplier: 1, IsFatal: true, Description: desc}
	}
	fixInput := func(desc string) Policy {
		return Policy{Action: ActionFixInput, BackoffMultiplier: 1, Description: desc}
	}

	return map[Kind]Policy{
		KindRateLimited: {
			Action: ActionRetry, MaxRetries: 5,
			BaseDelay: 2 * time.Second, BackoffMultiplier: 2, MaxDelay: 60 * time.Second,
			UsesFallback: true,
			Description:  "provider rate limit reached, waiting before retrying",
		},
		KindNetworkUnreachable: {
			Action: ActionRetry, MaxRetries: 3,
			BaseDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 10 * time.Second,
			UsesFallback: true,
			Description:  "network is unreachable, retrying the connection",
		},
		KindRequestTimeout: {
			Action: ActionRetry, MaxRetries: 2,
			BaseDelay: 2 * time.Second, BackoffMultiplier: 1.5, MaxDelay: 15 * time.Second,
			UsesFallback: true,
			Description:  "request timed out, retrying",
		},
		KindDependencyUnavailable: {
			Action: ActionRetry, MaxRetries: 3,
			BaseDelay: 5 * time.Second, BackoffMultiplier: 2, MaxDelay: 60 * time.Second,
			UsesFallback: true,
			Description:  "provider is temporarily unavailable",
		},
		KindDependencyOverloaded: {
			Action: ActionRetry, MaxRetries: 3,
			BaseDelay: 3 * time.Second, BackoffMultiplier: 2, MaxDelay: 30 * time.Second,
			UsesFallback: true,
			Description:  "provider is overloaded, backing off",
		},
		KindInvalidInput:  fixInput("input was rejected as invalid, fix it and resubmit"),
		KindInvalidFormat: fixInput("input or response has an invalid format"),
		KindEmptyInput:    fixInput("input is empty, nothing to process"),
		KindProcessingFailed: {
			Action: ActionFallback, MaxRetries: 1,
			BaseDelay: time.Second, BackoffMultiplier: 1, MaxDelay: time.Second,
			UsesFallback: true,
			Description:  "processing failed, trying an alternative strategy",
		},
		KindQualityTooLow: {
			Action: ActionFallback, MaxRetries: 1,
			BaseDelay: time.Second, BackoffMultiplier: 1, MaxDelay: time.Second,
			UsesFallback: true,
			Description:  "result quality is too low, trying an alternative strategy",
		},
		KindContentRejected: {
			Action: ActionFallback, BackoffMultiplier: 1,
			UsesFallback: true,
			Description:  "content was rejected by the provider safety filter",
		},
		KindCredentialInvalid:    fatal("credentials are invalid or expired"),
		KindUnsupportedInput:     fatal("input type is not supported"),
		KindStorageFailed:        fatal("storage operation failed"),
		KindConfigurationInvalid: fatal("configuration is invalid"),
		KindCancelled:            fatal("operation was cancelled"),
		KindUnknown: {
			Action: ActionRetry, MaxRetries: 1,
			BaseDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 5 * time.Second,
			UsesFallback: true,
			Description:  "unexpected error, retrying once",
		},
	}
}
