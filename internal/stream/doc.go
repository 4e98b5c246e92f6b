// Package stream runs the captioning pipeline: a producer/consumer queue
// feeding a single-goroutine Controller that segments speech, refreshes
// partial transcriptions and finalizes utterances.
package stream
