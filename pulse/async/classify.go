package async

import (
	"context"
	"strings"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/translate"
)

// ErrorCode represents the classification of a per-item error
type ErrorCode string

const (
	ErrorCodeTranslation ErrorCode = "translation"
	ErrorCodeUnavailable ErrorCode = "service_unavailable"
	ErrorCodeTimeout     ErrorCode = "timeout"
	ErrorCodeCanceled    ErrorCode = "canceled"
	ErrorCodePanic       ErrorCode = "panic"
	ErrorCodeUnknown     ErrorCode = "unknown"
)

// ClassifyError buckets a translate error for logging and stats. The item
// itself keeps the exact message.
func ClassifyError(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrorCodeUnknown
	case translate.IsTranslationError(err):
		return ErrorCodeTranslation
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCodeCanceled
	case errors.IsServiceUnavailableError(err):
		return ErrorCodeUnavailable
	case strings.HasPrefix(err.Error(), panicPrefix):
		return ErrorCodePanic
	default:
		return ErrorCodeUnknown
	}
}
