package entities

// Rate limit response headers surfaced to callers
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitResult is the outcome of a single admission check. Allowed and
// Denied are mutually exclusive by construction.
type RateLimitResult struct {
	Allowed           bool              `json:"allowed"`
	Remaining         int               `json:"remaining"`
	RetryAfterSeconds int64             `json:"retryAfterSeconds,omitempty"`
	Headers           map[string]string `json:"-"`
}

// Denied reports the inverse of Allowed
func (r *RateLimitResult) Denied() bool {
	return !r.Allowed
}

// RateLimitStatus is a point-in-time read of an address's counters
type RateLimitStatus struct {
	Address      string `json:"address"`
	ChainID      string `json:"chainId,omitempty"`
	CurrentCount int    `json:"currentCount"`
	Limited      bool   `json:"limited"`
}

// RateLimitStats are the limiter's global counters
type RateLimitStats struct {
	TotalRequests     int64   `json:"totalRequests"`
	AllowedRequests   int64   `json:"allowedRequests"`
	DeniedRequests    int64   `json:"deniedRequests"`
	AllowedPercentage float64 `json:"allowedPercentage"`
}
