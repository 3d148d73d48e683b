package gemini

import (
	"fmt"
	"net/http"
)

// APIError is returned when the endpoint could not produce a reply: a non-200
// status, a transport fault, or retries exhausted on rate limiting.
type APIError struct {
	StatusCode int // 0 when no response was received
	Body       string
	Attempts   int
	Err        error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("gemini: upstream status %d after %d attempt(s): %s", e.StatusCode, e.Attempts, e.Body)
	}
	return fmt.Sprintf("gemini: request failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// MalformedResponseError means a 200 response lacked
// candidates[0].content.parts[0].text.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("gemini: malformed response: %v; raw: %s", e.Err, e.Body)
	}
	return fmt.Sprintf("gemini: malformed response: raw: %s", e.Body)
}

func (e *MalformedResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *MalformedResponseError) MalformedResponse() bool {
	return true
}
