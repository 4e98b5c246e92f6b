package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender delivers an aggregated prompt downstream and returns the reply
type Sender interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// OllamaConfig configures the Ollama client
type OllamaConfig struct {
	Endpoint string
	Model    string
	System   string
	Timeout  time.Duration
}

// Ollama sends prompts to an Ollama server's /api/generate endpoint
type Ollama struct {
	config     OllamaConfig
	httpClient *http.Client
	logger     *slog.Logger
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllama creates an Ollama client
func NewOllama(config OllamaConfig, logger *slog.Logger) (*Ollama, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")

	return &Ollama{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Send implements Sender
func (o *Ollama) Send(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  o.config.Model,
		Prompt: prompt,
		System: o.config.System,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result generateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("model error: %s", result.Error)
	}

	o.logger.Debug("Prompt answered",
		slog.String("request_id", requestID),
		slog.String("model", o.config.Model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("response_length", len(result.Response)))

	return strings.TrimSpace(result.Response), nil
}

// WaitReady polls the server root until it answers or timeout elapses
func (o *Ollama) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.config.Endpoint+"/", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := o.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				o.logger.Info("Prompt endpoint is serving", slog.String("endpoint", o.config.Endpoint))
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("prompt endpoint %s not ready: %w", o.config.Endpoint, ctx.Err())
		case <-ticker.C:
		}
	}
}
