package health

import (
	"net/http"
	"strings"
	"time"
)

// IsQuotaError detects if an error is related to rate limiting or an overloaded server
func IsQuotaError(statusCode int, responseBody string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}

	lowerBody := strings.ToLower(responseBody)
	quotaPatterns := []string{
		"rate limit",
		"too many requests",
		"rate_limit_exceeded",
		"quota exceeded",
		"quota_exceeded",
		"requests per minute",
		"tokens per minute",
		"server is overloaded",
	}

	for _, pattern := range quotaPatterns {
		if strings.Contains(lowerBody, pattern) {
			return true
		}
	}

	return false
}

// IsRetryable reports whether a failed HTTP exchange is worth repeating within the same tick.
// Network errors surface as statusCode 0.
func IsRetryable(statusCode int) bool {
	switch {
	case statusCode == 0:
		return true
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// ParseCooldownDuration determines how long to pause calls after a quota error.
// A local server recovers quickly, so the pauses are short.
func ParseCooldownDuration(statusCode int, responseBody string) time.Duration {
	lowerBody := strings.ToLower(responseBody)

	if strings.Contains(lowerBody, "quota exceeded") || strings.Contains(lowerBody, "quota_exceeded") {
		return 5 * time.Minute
	}

	if statusCode == http.StatusTooManyRequests ||
		strings.Contains(lowerBody, "tokens per minute") ||
		strings.Contains(lowerBody, "requests per minute") {
		return 30 * time.Second
	}

	return 10 * time.Second
}
