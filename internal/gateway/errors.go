package gateway

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Kind classifies a gateway failure so callers can choose retry vs.
// fail-fast vs. user messaging.
type Kind string

const (
	KindRateLimit  Kind = "rate_limit"
	KindOverloaded Kind = "overloaded"
	KindAPI        Kind = "api_error"
	KindMaxTokens  Kind = "max_tokens"
	KindRefusal    Kind = "refusal"
)

// RateLimitError indicates the model API returned 429.
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("model API rate limited (status %d)", e.StatusCode)
}

// OverloadedError indicates the model API returned 529.
type OverloadedError struct {
	StatusCode int
}

func (e *OverloadedError) Error() string {
	return fmt.Sprintf("model API overloaded (status %d)", e.StatusCode)
}

// APIError covers any other non-2xx response, plus transport failures and
// timeouts.
type APIError struct {
	StatusCode int // 0 when the failure never produced a response
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("model API request failed: %s", e.Message)
	}
	return fmt.Sprintf("model API error %d: %s", e.StatusCode, e.Message)
}

// MaxTokensError indicates the response was cut off by the output token
// limit.
type MaxTokensError struct {
	OutputTokens int64
}

func (e *MaxTokensError) Error() string {
	return fmt.Sprintf("model response truncated at %d output tokens", e.OutputTokens)
}

// RefusalError indicates the model declined to complete the request.
type RefusalError struct{}

func (e *RefusalError) Error() string {
	return "model declined to complete the request"
}

// Classify returns the Kind for a gateway error, or "" for nil.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return KindRateLimit
	}
	var ov *OverloadedError
	if errors.As(err, &ov) {
		return KindOverloaded
	}
	var mt *MaxTokensError
	if errors.As(err, &mt) {
		return KindMaxTokens
	}
	var rf *RefusalError
	if errors.As(err, &rf) {
		return KindRefusal
	}
	return KindAPI
}

// wrapAPIError translates an anthropic SDK error into the typed taxonomy.
func wrapAPIError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429:
			return &RateLimitError{StatusCode: apierr.StatusCode}
		case 529:
			return &OverloadedError{StatusCode: apierr.StatusCode}
		default:
			return &APIError{StatusCode: apierr.StatusCode, Message: apierr.Error()}
		}
	}
	// Transport failure or context timeout: no HTTP status to report.
	return &APIError{Message: err.Error()}
}
