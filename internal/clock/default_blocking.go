//go:build blocking

package clock

// DefaultSleeper is the sleep primitive compiled into this build.
var DefaultSleeper Sleeper = BlockingSleeper{}
