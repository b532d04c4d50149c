package queue

import "scoutq/pkg/logger"

// Option configures a PriorityQueue.
type Option func(*PriorityQueue)

// WithInFlightChecker wires the dedup check against dispatched entries.
func WithInFlightChecker(c InFlightChecker) Option {
	return func(q *PriorityQueue) {
		q.inFlight = c
	}
}

// WithLogger sets the queue logger.
func WithLogger(l logger.Logger) Option {
	return func(q *PriorityQueue) {
		q.log = l
	}
}
