package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"rate limit", &RateLimitError{StatusCode: 429}, KindRateLimit},
		{"overloaded", &OverloadedError{StatusCode: 529}, KindOverloaded},
		{"max tokens", &MaxTokensError{OutputTokens: 8192}, KindMaxTokens},
		{"refusal", &RefusalError{}, KindRefusal},
		{"api", &APIError{StatusCode: 500, Message: "boom"}, KindAPI},
		{"wrapped rate limit", fmt.Errorf("send: %w", &RateLimitError{StatusCode: 429}), KindRateLimit},
		{"plain error", errors.New("dial tcp: timeout"), KindAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapAPIError(t *testing.T) {
	t.Run("429 becomes rate limit", func(t *testing.T) {
		err := wrapAPIError(&anthropic.Error{StatusCode: 429})
		var rl *RateLimitError
		assert.ErrorAs(t, err, &rl)
		assert.Equal(t, 429, rl.StatusCode)
	})

	t.Run("529 becomes overloaded", func(t *testing.T) {
		err := wrapAPIError(&anthropic.Error{StatusCode: 529})
		var ov *OverloadedError
		assert.ErrorAs(t, err, &ov)
	})

	t.Run("500 becomes api error with status", func(t *testing.T) {
		// The SDK's Error() method dereferences Request and Response, so the
		// fixture must populate them to be valid.
		err := wrapAPIError(&anthropic.Error{
			StatusCode: 500,
			Request:    &http.Request{Method: "POST", URL: &url.URL{}},
			Response:   &http.Response{StatusCode: 500},
		})
		var api *APIError
		assert.ErrorAs(t, err, &api)
		assert.Equal(t, 500, api.StatusCode)
	})

	t.Run("transport failure has no status", func(t *testing.T) {
		err := wrapAPIError(errors.New("dial tcp: connection refused"))
		var api *APIError
		assert.ErrorAs(t, err, &api)
		assert.Equal(t, 0, api.StatusCode)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&RateLimitError{StatusCode: 429}).Error(), "429")
	assert.Contains(t, (&MaxTokensError{OutputTokens: 100}).Error(), "100")
	assert.Contains(t, (&APIError{Message: "timeout"}).Error(), "timeout")
	assert.NotEmpty(t, (&RefusalError{}).Error())
}
