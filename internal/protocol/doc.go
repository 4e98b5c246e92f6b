// Package protocol implements the network microphone wire format: an 8-byte
// header followed by either a hello payload announcing the capture device or
// an audio payload of sequenced PCM16 samples.
package protocol
