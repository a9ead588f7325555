package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/tidwall/gjson"
)

// ProviderError is a failure reported by (or while talking to) a platform
type ProviderError struct {
	Platform   models.Platform
	Temporary  bool
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (HTTP %d): %s", e.Platform, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s provider error: %s", e.Platform, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Kind classifies the error for propagation
func (e *ProviderError) Kind() apperr.Kind {
	if e.Temporary {
		return apperr.KindProviderTemporary
	}
	return apperr.KindProviderPermanent
}

// Permanent builds a non-retryable provider error
func Permanent(p models.Platform, format string, args ...any) *ProviderError {
	return &ProviderError{Platform: p, Message: fmt.Sprintf(format, args...)}
}

// TransportError wraps a network failure. Timeouts and connection errors are temporary.
func TransportError(p models.Platform, err error) *ProviderError {
	var netErr net.Error
	temporary := errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr)
	return &ProviderError{Platform: p, Temporary: temporary, Message: err.Error(), Err: err}
}

// ResponseError builds a provider error from a non-2xx HTTP response body.
// Graph API bodies carry error.message/error.code; Telegram carries description.
func ResponseError(p models.Platform, status int, body []byte) *ProviderError {
	e := &ProviderError{
		Platform:   p,
		StatusCode: status,
		Temporary:  status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout,
	}
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		e.Message = firstNonEmpty(
			parsed.Get("error.message").String(),
			parsed.Get("error.error_user_msg").String(),
			parsed.Get("description").String(),
			parsed.Get("message").String(),
		)
		e.Code = firstNonEmpty(parsed.Get("error.code").String(), parsed.Get("error_code").String())
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
