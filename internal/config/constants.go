package config

// Defaults applied when the config file and environment leave a key unset.
const (
	// DefaultRefreshIntervalMS is the cadence for pulling backend light state.
	DefaultRefreshIntervalMS = 5000

	// DefaultRateLimitPerMinute caps admin API requests per client IP.
	DefaultRateLimitPerMinute = 120
)
