package errx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

// Kind is the coarse classification of an upstream provider failure. It
// drives the recovery policy: rate limits rotate the credential, timeouts
// retry on an escalating schedule, cancellations are propagated untouched.
type Kind string

const (
	KindRateLimit     Kind = "rate_limit"
	KindTimeout       Kind = "timeout"
	KindCanceled      Kind = "canceled"
	KindAuth          Kind = "auth"
	KindContextLength Kind = "context_length"
	KindModelNotFound Kind = "model_not_found"
	KindBilling       Kind = "billing"
	KindServer        Kind = "server"
	KindUnknown       Kind = "unknown"
)

// userMessages maps a classification to the safe message shown to end users.
// The raw provider error is kept for logs only.
var userMessages = map[Kind]string{
	KindRateLimit:     "The provider is rate limiting requests. Please try again shortly.",
	KindTimeout:       "The request timed out. Please try again.",
	KindCanceled:      "The request was canceled.",
	KindAuth:          "Authentication with the provider failed. Check the configured API key.",
	KindContextLength: "This conversation is too long for the selected model.",
	KindModelNotFound: "The selected model is not available.",
	KindBilling:       "There is a billing issue with the provider account.",
	KindServer:        "The provider returned a server error. Please try again later.",
}

// statusMessages maps HTTP status codes that carry a clear meaning on their
// own to user-facing messages, used when no richer signal is present.
var statusMessages = map[int]string{
	http.StatusUnauthorized:          userMessages[KindAuth],
	http.StatusForbidden:             userMessages[KindAuth],
	http.StatusNotFound:              userMessages[KindModelNotFound],
	http.StatusPaymentRequired:       userMessages[KindBilling],
	http.StatusRequestEntityTooLarge: userMessages[KindContextLength],
	http.StatusTooManyRequests:       userMessages[KindRateLimit],
}

// Classify buckets an upstream error into the recovery taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case IsTimeout(err):
		return KindTimeout
	case IsRateLimit(err):
		return KindRateLimit
	case IsAuth(err):
		return KindAuth
	case IsContextLength(err):
		return KindContextLength
	case IsModelNotFound(err):
		return KindModelNotFound
	case IsBilling(err):
		return KindBilling
	case IsServer(err):
		return KindServer
	default:
		return KindUnknown
	}
}

// UserMessage returns the safe user-facing message for err, falling back to
// the raw error text when no table entry applies.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[Classify(err)]; ok {
		return msg
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if msg, ok := statusMessages[apiErr.StatusCode]; ok {
			return msg
		}
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// IsRateLimit reports whether err is an upstream 429 / quota exhaustion.
func IsRateLimit(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if strings.EqualFold(apiErr.Code, "rate_limit_exceeded") {
			return true
		}
	}
	return containsAny(err,
		"429",
		"rate limit",
		"resource_exhausted",
		"quota exceeded",
	)
}

// IsTimeout reports whether err carries a timeout signal, either a net-style
// Timeout() error, a deadline expiry, or a watchdog timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return false
}

// IsAuth reports whether err is an authentication / authorization failure.
func IsAuth(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return true
		}
	}
	return containsAny(err,
		"invalid api key",
		"invalid_api_key",
		"incorrect api key",
		"unauthorized",
		"permission denied",
	)
}

// IsContextLength reports whether err indicates the prompt exceeded the
// model's context window.
func IsContextLength(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && strings.EqualFold(apiErr.Code, "context_length_exceeded") {
		return true
	}
	return containsAny(err,
		"context length",
		"context_length",
		"prompt is too long",
		"request too large",
	)
}

// IsModelNotFound reports whether err indicates an unknown model.
func IsModelNotFound(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsBilling reports whether err indicates an account/billing problem.
func IsBilling(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusPaymentRequired {
			return true
		}
		if strings.EqualFold(apiErr.Code, "insufficient_quota") {
			return true
		}
	}
	return containsAny(err, "insufficient_quota", "billing")
}

// IsServer reports whether err is a provider-side 5xx failure.
func IsServer(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return containsAny(err, "500", "502", "503", "unavailable", "overloaded")
}

func containsAny(err error, patterns ...string) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
