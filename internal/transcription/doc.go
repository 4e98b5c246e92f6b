// Package transcription defines the Engine used to turn utterance audio into
// text, and its implementations: an HTTP client for OpenAI-compatible
// transcription servers with retry and backoff, and an in-process whisper.cpp
// engine available with the whisper_cpp build tag.
package transcription
