package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrorRateLimited       ErrorCode = "RATE_LIMITED"
	ErrorUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrorMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Detail is the caller-facing message: the wrapped error text when present,
// otherwise the reason code.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalid(reason, format string, args ...any) *Error {
	return newError(ErrorInvalidInput, reason, fmt.Errorf(format, args...))
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type rateLimited interface {
	RateLimited() bool
}

type malformedResponse interface {
	MalformedResponse() bool
}

// classifyLLMError maps an LLM client failure onto an error code without
// depending on the concrete client package.
func classifyLLMError(err error) *Error {
	var mr malformedResponse
	if errors.As(err, &mr) && mr.MalformedResponse() {
		return newError(ErrorMalformedResponse, "llm_malformed_response", err)
	}
	var rl rateLimited
	if errors.As(err, &rl) && rl.RateLimited() {
		return newError(ErrorRateLimited, "llm_rate_limited", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "llm_rate_limited", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ErrorInternal, "request_cancelled", err)
	}
	return newError(ErrorUpstream, "llm_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var sc httpStatusCoder
	if !errors.As(err, &sc) {
		return 0, false
	}
	status := sc.HTTPStatusCode()
	return status, status != 0
}
