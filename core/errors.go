package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSignatureInvalid    = "CHATFLOW_SIGNATURE_INVALID"
	ErrorUnsupportedObject   = "CHATFLOW_UNSUPPORTED_WEBHOOK_OBJECT"
	ErrorNodeTypeUnsupported = "CHATFLOW_NODE_TYPE_UNSUPPORTED"
	ErrorFlowCycleDetected   = "CHATFLOW_FLOW_CYCLE_DETECTED"
	ErrorValidationFailed    = "CHATFLOW_VALIDATION_FAILED"
	ErrorWindowUnknown       = "CHATFLOW_WINDOW_UNKNOWN"
	ErrorWindowExpired       = "CHATFLOW_WINDOW_EXPIRED"
	ErrorRateLimited         = "CHATFLOW_RATE_LIMITED"
	ErrorDispatchFailed      = "CHATFLOW_DISPATCH_FAILED_AFTER_RETRIES"
	ErrorPersistence         = "CHATFLOW_PERSISTENCE_ERROR"
	ErrorBadInput            = "CHATFLOW_BAD_INPUT"
	ErrorInternal            = "CHATFLOW_INTERNAL_ERROR"
)

// MapError normalizes any error into the module's rich-error envelope:
// category, HTTP code, and CHATFLOW_* text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newEnvelopeError(err.Error(), goerrors.CategoryAuth, ErrorSignatureInvalid)
	case strings.Contains(msg, "cycle"):
		return newEnvelopeError(err.Error(), goerrors.CategoryOperation, ErrorFlowCycleDetected)
	case strings.Contains(msg, "window") && strings.Contains(msg, "expired"):
		return newEnvelopeError(err.Error(), goerrors.CategoryOperation, ErrorWindowExpired)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newEnvelopeError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	case strings.Contains(msg, "not found"):
		return newEnvelopeError(err.Error(), goerrors.CategoryNotFound, ErrorBadInput)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newEnvelopeError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// HasTextCode reports whether err carries the given CHATFLOW_* text code.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), strings.TrimSpace(textCode))
}

func newEnvelopeError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorValidationFailed
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorSignatureInvalid
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorDispatchFailed
	case goerrors.CategoryOperation:
		return ErrorNodeTypeUnsupported
	case goerrors.CategoryNotFound:
		return ErrorBadInput
	default:
		return ErrorInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
