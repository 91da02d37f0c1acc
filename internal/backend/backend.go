// Package backend wraps the external text-generation service.
//
// Providers return raw text or an error. Errors that matter to the operator
// wrap ErrQuotaExhausted or ErrUpstreamRateLimited; every other error means the
// backend was unavailable for this request.
package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/HanTheDev/relationship-coach-api/internal/prompt"
)

var (
	// ErrQuotaExhausted means the backend account is out of credit or quota.
	ErrQuotaExhausted = errors.New("backend quota exhausted")
	// ErrUpstreamRateLimited means the backend throttled this service.
	ErrUpstreamRateLimited = errors.New("backend rate limited")
)

// Backend produces raw text for a payload.
type Backend interface {
	Complete(ctx context.Context, p prompt.Payload) (string, error)
	Name() string
}

// IsPolicyError reports whether err is an operator-level failure that must
// not be hidden behind fallback output.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrUpstreamRateLimited)
}

var quotaMarkers = []string{"insufficient_quota", "billing", "quota_exceeded", "exceeded your current quota"}

// classifyStatus maps an HTTP status and the error's type/code/body text to a
// policy error, or returns nil when the failure is plain unavailability.
func classifyStatus(status int, details ...string) error {
	text := strings.ToLower(strings.Join(details, " "))
	quota := false
	for _, m := range quotaMarkers {
		if strings.Contains(text, m) {
			quota = true
			break
		}
	}
	switch {
	case status == http.StatusPaymentRequired:
		return ErrQuotaExhausted
	case status == http.StatusTooManyRequests && quota:
		return ErrQuotaExhausted
	case status == http.StatusTooManyRequests:
		return ErrUpstreamRateLimited
	case quota && status >= 400 && status < 500:
		return ErrQuotaExhausted
	}
	return nil
}
