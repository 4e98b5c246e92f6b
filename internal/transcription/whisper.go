package transcription

// WhisperConfig configures the in-process whisper.cpp engine
type WhisperConfig struct {
	ModelPath string
	Language  string
	Threads   uint
}
