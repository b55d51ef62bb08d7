package industrymatch

import "errors"

// Sentinel errors.
var (
	// ErrNoModelAvailable means every candidate model has exhausted its
	// daily request quota. Expected during normal operation, not a fault.
	ErrNoModelAvailable = errors.New("industrymatch: no model available within daily limits")

	// ErrDailyQuotaExhausted means the selected model hit its daily
	// request ceiling. Not retryable within the same run.
	ErrDailyQuotaExhausted = errors.New("industrymatch: daily request limit reached")

	// ErrAdmissionTimeout means the per-minute limits did not clear
	// within the admission wait budget.
	ErrAdmissionTimeout = errors.New("industrymatch: waited too long for rate limit")

	ErrUnknownModel        = errors.New("industrymatch: unknown model")
	ErrRateLimited         = errors.New("industrymatch: rate limited by provider")
	ErrAuthFailed          = errors.New("industrymatch: authentication failed")
	ErrInvalidRequest      = errors.New("industrymatch: invalid request")
	ErrProviderUnavailable = errors.New("industrymatch: provider unavailable")
	ErrNoJSON              = errors.New("industrymatch: no JSON object in response")
)

// IsRetryable returns true for transient provider errors worth another
// attempt with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable)
}

// IsFatal returns true if retrying cannot help.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrInvalidRequest)
}
