package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "stream stalled" }
func (fakeTimeout) Timeout() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"rate limit by status", &openai.Error{StatusCode: http.StatusTooManyRequests}, KindRateLimit},
		{"rate limit by text", errors.New("429 too many requests"), KindRateLimit},
		{"timeout interface", fakeTimeout{}, KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"auth", errors.New("invalid api key provided"), KindAuth},
		{"context length", errors.New("maximum context length exceeded"), KindContextLength},
		{"server", errors.New("503 service unavailable"), KindServer},
		{"unknown", errors.New("something odd"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifySeesWrappedErrors(t *testing.T) {
	err := fmt.Errorf("attempt 3: %w", &openai.Error{StatusCode: http.StatusTooManyRequests})
	assert.Equal(t, KindRateLimit, Classify(err))
	assert.True(t, IsRateLimit(err))
}

func TestUserMessage(t *testing.T) {
	t.Run("classified errors use the message table", func(t *testing.T) {
		msg := UserMessage(errors.New("429 rate limit"))
		assert.Equal(t, userMessages[KindRateLimit], msg)
	})

	t.Run("app errors keep their message", func(t *testing.T) {
		err := New(errors.New("boom"), http.StatusInternalServerError, "Please try again later.")
		assert.Equal(t, "Please try again later.", UserMessage(err))
	})

	t.Run("unknown errors fall back to raw text", func(t *testing.T) {
		assert.Equal(t, "something odd", UserMessage(errors.New("something odd")))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, UserMessage(nil))
	})
}

func TestIsTimeoutDistinguishesCancellation(t *testing.T) {
	require.False(t, IsTimeout(context.Canceled))
	require.True(t, IsTimeout(context.DeadlineExceeded))
	require.True(t, IsTimeout(fmt.Errorf("wrapped: %w", fakeTimeout{})))
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := New(inner, http.StatusBadGateway, SystemErrorMessage)
	require.ErrorIs(t, err, inner)

	var appErr *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}
