package constants

import "time"

const (
	// Sliding-window admission control for the MCSR Ranked API.
	RateLimitMaxRequests = 500
	RateLimitWindow      = 10 * time.Minute

	// Cool-down before retrying a page that came back HTTP 429.
	RateLimitCooldown = 10 * time.Second
	RateLimitRetries  = 5

	// Courtesy pacing between consecutive outbound requests.
	RequestPaceInterval = 100 * time.Millisecond
)

const (
	ExternalAPITimeout = 10 * time.Second
	RequestTimeout     = 5 * time.Minute
)

const (
	// Ranked seasons probed during season discovery.
	SeasonProbeFirst = 3
	SeasonProbeLast  = 14

	PageSize          = 100
	DefaultMaxMatches = 5000

	// Per-call cap on detail fetches.
	DefaultSegmentFetchLimit = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)
