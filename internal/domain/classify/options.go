package classify

import (
	"time"

	"scoutq/pkg/logger"
)

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) {
		c.log = l
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		c.now = now
	}
}
