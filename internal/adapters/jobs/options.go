package jobs

import (
	"github.com/okian/typerace/pkg/logger"
)

// Option applies a configuration option to a Ticker.
type Option func(*Ticker)

// WithLogger sets a custom logger for the job.
func WithLogger(l logger.Logger) Option {
	return func(t *Ticker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRunOnStop runs the task one final time when the job is shut down.
// The flush job uses it so nothing buffered is lost on exit.
func WithRunOnStop() Option {
	return func(t *Ticker) {
		t.runOnStop = true
	}
}
