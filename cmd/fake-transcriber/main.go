// Command fake-transcriber is an OpenAI-compatible transcription endpoint for
// local testing. It decodes the uploaded WAV and answers with a slice of a
// fixed script proportional to the audio length, so partial captions grow
// the way they would against a real model. Silent audio yields empty text.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/skypro1111/livecaption/internal/audio"
)

const defaultScript = "this is a test transcription of the audio fragment produced by the fake transcriber " +
	"it keeps talking for as long as you do and then it says stop recording"

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type transcriber struct {
	words          []string
	wordsPerSecond float64
	silenceRMS     float64
	delay          time.Duration
	logger         *slog.Logger
}

func (t *transcriber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		http.Error(w, "Invalid WAV: "+err.Error(), http.StatusBadRequest)
		return
	}
	duration := float64(len(samples)) / float64(rate)

	time.Sleep(t.delay)

	text := ""
	if rms(samples) >= t.silenceRMS {
		n := min(int(math.Ceil(duration*t.wordsPerSecond)), len(t.words))
		text = strings.Join(t.words[:n], " ")
	}

	t.logger.Info("Transcription request",
		slog.String("request_id", r.Header.Get("X-Request-ID")),
		slog.String("filename", header.Filename),
		slog.String("model", r.FormValue("model")),
		slog.String("language", r.FormValue("language")),
		slog.Int("audio_bytes", len(data)),
		slog.Float64("duration_seconds", duration),
		slog.String("text", text))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transcriptionResponse{
		Text:     text,
		Language: r.FormValue("language"),
		Duration: duration,
	})
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "Listen address")
	script := flag.String("script", defaultScript, "Words returned, in order, as audio accumulates")
	wps := flag.Float64("wps", 2.5, "Words per second of audio")
	silence := flag.Float64("silence-rms", 0.01, "RMS below which audio counts as silence")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mux := http.NewServeMux()
	mux.Handle("/v1/audio/transcriptions", &transcriber{
		words:          strings.Fields(*script),
		wordsPerSecond: *wps,
		silenceRMS:     *silence,
		delay:          *delay,
		logger:         logger,
	})

	logger.Info("Fake transcriber listening",
		slog.String("endpoint", "http://"+*addr+"/v1/audio/transcriptions"))

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
