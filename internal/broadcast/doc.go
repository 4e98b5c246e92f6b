// Package broadcast fans caption events out to websocket subscribers.
// Slow subscribers lose events rather than stall the pipeline.
package broadcast
