package failure

// Kind - закрытый набор категорий сбоя
type Kind string

const (
	KindRateLimited           Kind = "rate_limited"
	KindNetworkUnreachable    Kind = "network_unreachable"
	KindRequestTimeout        Kind = "request_timeout"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindDependencyOverloaded  Kind = "dependency_overloaded"
	KindInvalidInput          Kind = "invalid_input"
	KindInvalidFormat         Kind = "invalid_format"
	KindEmptyInput            Kind = "empty_input"
	KindProcessingFailed      Kind = "processing_failed"
	KindQualityTooLow         Kind = "quality_too_low"
	KindContentRejected       Kind = "content_rejected"
	KindCredentialInvalid     Kind = "credential_invalid"
	KindUnsupportedInput      Kind = "unsupported_input"
	KindStorageFailed         Kind = "storage_failed"
	KindConfigurationInvalid  Kind = "configuration_invalid"
	KindCancelled             Kind = "cancelled"
	KindUnknown               Kind = "unknown"
)

var allKinds = []Kind{
	KindRateLimited,
	KindNetworkUnreachable,
	KindRequestTimeout,
	KindDependencyUnavailable,
	KindDependencyOverloaded,
	KindInvalidInput,
	KindInvalidFormat,
	KindEmptyInput,
	KindProcessingFailed,
	KindQualityTooLow,
	KindContentRejected,
	KindCredentialInvalid,
	KindUnsupportedInput,
	KindStorageFailed,
	KindConfigurationInvalid,
	KindCancelled,
	KindUnknown,
}

// Kinds возвращает копию полного списка категорий.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

func (k Kind) IsValid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Class - класс восстановления, к которому относится категория
type Class string

const (
	ClassTransient  Class = "transient"
	ClassInput      Class = "input"
	ClassProcessing Class = "processing"
	ClassFatal      Class = "fatal"
	ClassUnknown    Class = "unknown"
)

func (k Kind) Class() Class {
	switch k {
	case KindRateLimited, KindNetworkUnreachable, KindRequestTimeout,
		KindDependencyUnavailable, KindDependencyOverloaded:
		return ClassTransient
	case KindInvalidInput, KindInvalidFormat, KindEmptyInput:
		return ClassInput
	case KindProcessingFailed, KindQualityTooLow, KindContentRejected:
		return ClassProcessing
	case KindCredentialInvalid, KindUnsupportedInput, KindStorageFailed,
		KindConfigurationInvalid, KindCancelled:
		return ClassFatal
	}
	return ClassUnknown
}

// DependencyExhausted - сам провайдер недоступен или исчерпал лимиты,
// повторять тот же запрос в упрощенном виде бессмысленно.
func (k Kind) DependencyExhausted() bool {
	switch k {
	case KindRateLimited, KindDependencyUnavailable, KindDependencyOverloaded, KindNetworkUnreachable:
		return true
	}
	return false
}
