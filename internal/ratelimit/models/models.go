package models

import "time"

// EndpointClass categorizes endpoints for differentiated rate limiting.
type EndpointClass string

const (
	// ClassRead: getters and account views.
	ClassRead EndpointClass = "read"
	// ClassWrite: operations that submit a message to the ledger.
	ClassWrite EndpointClass = "write"
	// ClassFaucet: funding from outside the ledger.
	ClassFaucet EndpointClass = "faucet"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassRead, ClassWrite, ClassFaucet:
		return true
	}
	return false
}

// Limit is the token bucket of one endpoint class.
type Limit struct {
	RPS   float64
	Burst int
}

// DefaultLimits returns the per-caller limits applied when none are configured.
func DefaultLimits() map[EndpointClass]Limit {
	return map[EndpointClass]Limit{
		ClassRead:   {RPS: 20, Burst: 40},
		ClassWrite:  {RPS: 5, Burst: 10},
		ClassFaucet: {RPS: 0.1, Burst: 2},
	}
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"` // seconds
}
