package failure

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCancelled      = errors.New("operation cancelled")
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// Error - сбой, отданный наружу вместе с классификацией.
// Оборачивает последнюю исходную ошибку, errors.Is по ней работает.
type Error struct {
	Err            error
	Classification Classification
	Attempts       int
	Dependency     string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Classification.Kind))
	if e.Attempts > 0 {
		fmt.Fprintf(&sb, " after %d attempt(s)", e.Attempts)
	}
	if e.Dependency != "" {
		fmt.Fprintf(&sb, " [%s]", e.Dependency)
	}
	if desc := e.Classification.Policy.Description; desc != "" {
		sb.WriteString(": ")
		sb.WriteString(desc)
	}
	if ra := e.Classification.Metadata.RetryAfter; ra > 0 {
		fmt.Fprintf(&sb, " (retry after %s)", ra)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) FailureKind() Kind { return e.Classification.Kind }

func (e *Error) RetryAfterHint() time.Duration { return e.Classification.Metadata.RetryAfter }

// Kind возвращает категорию классифицированной ошибки.
func (e *Error) Kind() Kind { return e.Classification.Kind }

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string     { return e.err.Error() }
func (e *kindError) Unwrap() error     { return e.err }
func (e *kindError) FailureKind() Kind { return e.kind }

// New создает ошибку с заранее известной категорией.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// Tag помечает существующую ошибку категорией.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf достает явную категорию из цепочки, если она есть.
func KindOf(err error) (Kind, bool) {
	var k Kinder
	if errors.As(err, &k) {
		return k.FailureKind(), true
	}
	return "", false
}

// AsError достает *Error из цепочки.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
