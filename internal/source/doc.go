// Package source provides the chunk sources feeding the caption pipeline: a
// UDP network microphone and a WAV file player. Both reframe their input into
// fixed-size chunks at the pipeline sample rate.
package source
