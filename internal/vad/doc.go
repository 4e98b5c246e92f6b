// Package vad segments a chunk stream into utterances. A Detector reports
// speech boundaries per chunk; the Gate wraps it with a pre-speech ring so the
// onset of each utterance is never lost, and accumulates the utterance until
// the detector reports its end.
package vad
