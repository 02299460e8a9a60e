package scoring

import "time"

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithHeartbeatWindow sets the maximum heartbeat age accepted at submit time.
func WithHeartbeatWindow(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.heartbeatWindow = d
		}
	}
}

// WithMinDuration sets the shortest plausible game.
func WithMinDuration(d time.Duration) Option {
	return func(v *Validator) {
		if d >= 0 {
			v.minDuration = d
		}
	}
}

// WithMaxWPM sets the fastest plausible typing speed.
func WithMaxWPM(wpm int) Option {
	return func(v *Validator) {
		if wpm > 0 {
			v.maxWPM = wpm
		}
	}
}
