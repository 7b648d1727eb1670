package llm

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownProvider indicates a provider name outside the closed enum.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRateLimited indicates the provider rejected a call for quota
	// reasons. Retryable before the first user-visible output; fatal
	// mid-stream.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnavailable indicates the selected provider is not configured or
	// cannot be reached. Fatal immediately; the engine never silently
	// falls back to another provider.
	ErrUnavailable = errors.New("provider unavailable")
)

// rateLimitPatterns are matched case-insensitively against err.Error().
// String matching is a documented exception: the provider SDKs do not
// expose sentinel errors for every quota-shaped failure, and store-side
// errors (embedding calls inside search) surface as plain wrapped errors.
var rateLimitPatterns = []string{
	"rate limit",
	"quota",
	"429",
	"resource_exhausted",
	"too many requests",
}

// IsRateLimited reports whether err is a quota-shaped failure, either
// classified by a client into ErrRateLimited or matching a known pattern.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
