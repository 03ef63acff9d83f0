package failure

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// JitterFraction - разброс задержки, ±20%
const JitterFraction = 0.2

// Metadata - то, что удалось вытащить из сбоя
type Metadata struct {
	HTTPStatus   int
	ProviderCode string
	RetryAfter   time.Duration
	Details      string
}

// Classification создается заново на каждый сбой
type Classification struct {
	Kind              Kind
	Policy            Policy
	IsRetryable       bool
	IsFatal           bool
	RecommendedAction Action
	Metadata          Metadata
}

type Classifier struct {
	policies *PolicyTable
	random   func() float64
}

type Option func(*Classifier)

// WithRandom подменяет источник случайности для джиттера (значения в [0,1)).
func WithRandom(fn func() float64) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.random = fn
		}
	}
}

func NewClassifier(policies *PolicyTable, opts ...Option) *Classifier {
	if policies == nil {
		policies = DefaultPolicies()
	}
	c := &Classifier{
		policies: policies,
		random:   rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Policies() *PolicyTable { return c.policies }

func (c *Classifier) Policy(k Kind) Policy { return c.policies.Lookup(k) }

// Classify - чистая функция: один и тот же сбой всегда дает одну и ту же категорию.
func (c *Classifier) Classify(err error) Classification {
	d := Describe(err)
	kind := classifyKind(err, d)
	policy := c.policies.Lookup(kind)

	return Classification{
		Kind:              kind,
		Policy:            policy,
		IsRetryable:       policy.Retryable(),
		IsFatal:           policy.IsFatal,
		RecommendedAction: policy.Action,
		Metadata: Metadata{
			HTTPStatus:   d.HTTPStatus,
			ProviderCode: d.ProviderCode,
			RetryAfter:   d.RetryAfter,
			Details:      d.Details,
		},
	}
}

// RetryDelay считает задержку перед повтором по политике категории.
func (c *Classifier) RetryDelay(kind Kind, attempt int) time.Duration {
	return c.Delay(c.policies.Lookup(kind), attempt)
}

// Delay - base*multiplier^(attempt-1) с джиттером ±20%, обрезано по MaxDelay.
func (c *Classifier) Delay(p Policy, attempt int) time.Duration {
	base := p.UnjitteredDelay(attempt)
	jitter := 1 + JitterFraction*(2*c.random()-1)
	d := time.Duration(float64(base) * jitter)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

type rule struct {
	kind  Kind
	match func(err error, d Descriptor, msg, code string) bool
}

// порядок важен: первое совпадение выигрывает
var rules = []rule{
	{KindCancelled, isCancelled},
	{"", nil}, // явно помеченная категория, см. classifyKind
	{KindRateLimited, isRateLimited},
	{KindCredentialInvalid, isCredentialInvalid},
	{KindNetworkUnreachable, isNetworkUnreachable},
	{KindRequestTimeout, isTimeout},
	{KindDependencyUnavailable, isUnavailable},
	{KindDependencyOverloaded, isOverloaded},
	{KindEmptyInput, isEmptyInput},
	{KindInvalidFormat, isInvalidFormat},
	{KindUnsupportedInput, isUnsupported},
	{KindInvalidInput, isInvalidInput},
	{KindContentRejected, isContentRejected},
	{KindQualityTooLow, isQualityTooLow},
	{KindProcessingFailed, isProcessingFailed},
	{KindStorageFailed, isStorageFailed},
	{KindConfigurationInvalid, isConfigurationInvalid},
}

func classifyKind(err error, d Descriptor) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(d.Message)
	code := strings.ToLower(d.ProviderCode)

	for _, r := range rules {
		if r.match == nil {
			if k, ok := KindOf(err); ok && k.IsValid() {
				return k
			}
			continue
		}
		if r.match(err, d, msg, code) {
			return r.kind
		}
	}
	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func codeIn(code string, codes ...string) bool {
	if code == "" {
		return false
	}
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

func isCancelled(err error, _ Descriptor, msg, code string) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return true
	}
	return codeIn(code, "cancelled", "canceled", "aborted") ||
		containsAny(msg, "operation cancelled", "operation canceled", "request aborted", "aborted by user")
}

func isRateLimited(_ error, d Descriptor, msg, code string) bool {
	if d.HTTPStatus == 429 {
		return true
	}
	return codeIn(code, "rate_limit_exceeded", "rate_limited", "resource_exhausted", "too_many_requests", "quota_exceeded") ||
		containsAny(msg, "rate limit", "ratelimit", "rate-limit", "too many requests", "quota",
			"resource exhausted", "resource_exhausted", "429", "no backup keys available")
}

func isCredentialInvalid(_ error, d Descriptor, msg, code string) bool {
	if d.HTTPStatus == 401 || d.HTTPStatus == 403 {
		return true
	}
	return codeIn(code, "invalid_api_key", "unauthenticated", "permission_denied", "unauthorized") ||
		containsAny(msg, "api key", "api_key", "unauthorized", "unauthenticated", "authentication",
			"forbidden", "invalid credentials", "permission denied")
}

func isNetworkUnreachable(err error, _ Descriptor, msg, _ string) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Timeout() {
		return true
	}
	return containsAny(msg, "connection refused", "connection reset", "no such host", "network is unreachable",
		"network error", "econnrefused", "econnreset", "enotfound", "broken pipe", "dial tcp")
}

func isTimeout(err error, d Descriptor, msg, code string) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAttemptTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if d.HTTPStatus == 408 || d.HTTPStatus == 504 {
		return true
	}
	return codeIn(code, "deadline_exceeded", "timeout") ||
		containsAny(msg, "timeout", "timed out", "deadline exceeded")
}

func isUnavailable(_ error, d Descriptor, msg, code string) bool {
	if d.HTTPStatus == 502 {
		return true
	}
	return codeIn(code, "unavailable", "service_unavailable") ||
		containsAny(msg, "service unavailable", "unavailable", "bad gateway", "circuit breaker", "circuit open")
}

// 503 без явного "unavailable" считается перегрузкой: текстовое правило
// недоступности стоит раньше и забирает остальные 503
func isOverloaded(_ error, d Descriptor, msg, code string) bool {
	if d.HTTPStatus == 529 || d.HTTPStatus == 503 || d.HTTPStatus == 500 {
		return true
	}
	return codeIn(code, "overloaded", "overloaded_error", "server_busy") ||
		containsAny(msg, "overloaded", "over capacity", "server busy", "internal server error")
}

func isEmptyInput(_ error, _ Descriptor, msg, code string) bool {
	return codeIn(code, "empty_input") ||
		containsAny(msg, "empty input", "empty text", "input is empty", "nothing to translate")
}

func isInvalidFormat(_ error, _ Descriptor, msg, code string) bool {
	return codeIn(code, "invalid_format") ||
		containsAny(msg, "invalid format", "malformed", "parse error", "unmarshal", "invalid json", "invalid character")
}

func isUnsupported(_ error, d Descriptor, msg, code string) bool {
	if d.HTTPStatus == 415 {
		return true
	}
	return codeIn(code, "unsupported", "unsupported_input") ||
		containsAny(msg, "unsupported", "not supported")
}

func isInvalidInput(_ error, d Descriptor, msg, code string) bool {
	if d.HTTPStatus == 400 || d.HTTPStatus == 413 || d.HTTPStatus == 422 {
		return true
	}
	return codeIn(code, "invalid_request", "invalid_argument", "context_length_exceeded") ||
		containsAny(msg, "invalid input", "invalid request", "bad request", "invalid argument",
			"too long", "context length", "token limit", "maximum context")
}

func isContentRejected(_ error, _ Descriptor, msg, code string) bool {
	return codeIn(code, "content_filter", "safety", "blocked", "recitation") ||
		containsAny(msg, "content filter", "content_filter", "safety", "content policy", "blocked", "recitation")
}

func isQualityTooLow(_ error, _ Descriptor, msg, _ string) bool {
	return containsAny(msg, "quality too low", "low quality", "low confidence", "quality gate")
}

func isProcessingFailed(_ error, _ Descriptor, msg, _ string) bool {
	return containsAny(msg, "processing failed", "empty response", "translation failed",
		"generation failed", "incomplete response", "no candidates")
}

func isStorageFailed(_ error, _ Descriptor, msg, _ string) bool {
	return containsAny(msg, "storage", "database", "disk full", "no space left", "sql")
}

func isConfigurationInvalid(_ error, d Descriptor, msg, _ string) bool {
	return containsAny(msg, "configuration", "not configured", "misconfigured", "unknown model",
		"model not found", "invalid model") || (d.HTTPStatus == 404 && strings.Contains(msg, "model"))
}
