package osvdev

import (
	"time"

	"github.com/depscan/depscan/internal/version"
)

type ClientConfig struct {
	MaxRetryAttempts          int
	JitterMultiplier          float64
	BackoffDurationMultiplier float64
	// MaxRetryAfter caps how long a Retry-After header may make a request wait.
	MaxRetryAfter time.Duration
	// MaxPageDepth bounds how many next_page_token follow-ups one batch makes.
	MaxPageDepth int
	UserAgent    string
}

// DefaultConfig makes a default client config
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxRetryAttempts:          4,
		JitterMultiplier:          2,
		BackoffDurationMultiplier: 1,
		MaxRetryAfter:             time.Minute,
		MaxPageDepth:              10,
		UserAgent:                 "depscan/" + version.Version,
	}
}
