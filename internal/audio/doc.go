// Package audio holds the sample containers used by the captioning pipeline:
// fixed-size capture chunks, the pre-speech ring, the growable utterance buffer,
// a framer that turns sequenced PCM packets into fixed chunks, and WAV/PCM
// conversion helpers used by sources and transcription backends.
package audio
