package failure

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// Ошибки провайдеров реализуют эти интерфейсы по желанию,
// классификатор достает их через errors.As.
type (
	StatusCoder interface {
		StatusCode() int
	}
	ProviderCoder interface {
		ProviderCode() string
	}
	RetryAfterHinter interface {
		RetryAfterHint() time.Duration
	}
	Detailer interface {
		Details() string
	}
	// Kinder - ошибка, которая уже знает свою категорию
	Kinder interface {
		FailureKind() Kind
	}
)

// Descriptor - то, что классификатор знает о сбое
type Descriptor struct {
	Message      string
	HTTPStatus   int
	ProviderCode string
	RetryAfter   time.Duration
	Details      string
}

var statusInMessage = regexp.MustCompile(`(?i)\b(?:status|http|code)\s*[:=]?\s*([1-5]\d\d)\b`)

// Describe разбирает цепочку ошибок. Пустая ошибка дает пустой дескриптор.
func Describe(err error) Descriptor {
	if err == nil {
		return Descriptor{}
	}

	d := Descriptor{Message: err.Error()}

	var sc StatusCoder
	if errors.As(err, &sc) {
		d.HTTPStatus = sc.StatusCode()
	}
	var pc ProviderCoder
	if errors.As(err, &pc) {
		d.ProviderCode = pc.ProviderCode()
	}
	var ra RetryAfterHinter
	if errors.As(err, &ra) {
		if hint := ra.RetryAfterHint(); hint > 0 {
			d.RetryAfter = hint
		}
	}
	var dt Detailer
	if errors.As(err, &dt) {
		d.Details = dt.Details()
	}

	if d.HTTPStatus == 0 {
		if m := statusInMessage.FindStringSubmatch(d.Message); m != nil {
			if code, convErr := strconv.Atoi(m[1]); convErr == nil {
				d.HTTPStatus = code
			}
		}
	}

	return d
}
