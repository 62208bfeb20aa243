package models

import (
	"fmt"
	"time"
)

// EndpointClass categorizes endpoints for differentiated rate limiting.
type EndpointClass string

const (
	// ClassRead: aggregation reads (100 req/min by default).
	ClassRead EndpointClass = "read"
	// ClassSensitive: simulations, each of which triggers a full processor run (30 req/min).
	ClassSensitive EndpointClass = "sensitive"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	return c == ClassRead || c == ClassSensitive
}

// Limit is a request budget per window.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// PerMinute is the common case.
func PerMinute(n int) Limit {
	return Limit{RequestsPerWindow: n, Window: time.Minute}
}

func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.RequestsPerWindow, l.Window)
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}
