package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

// OpenAIEngine synthesizes speech through an OpenAI-compatible HTTP API.
type OpenAIEngine struct {
	baseURL string
	apiKey  string
	model   string

	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// OpenAIConfig holds configuration for the HTTP engine.
type OpenAIConfig struct {
	// BaseURL of the service, without the /v1 suffix (defaults to https://api.openai.com)
	BaseURL string

	// APIKey sent as a bearer token; optional for local servers
	APIKey string

	// Model name (defaults to tts-1)
	Model string

	// RequestsPerMinute caps the request rate; zero disables limiting
	RequestsPerMinute int

	// HTTPClient overrides the default client
	HTTPClient *http.Client

	Logger *log.Logger
}

type speechRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"response_format,omitempty"`
}

// NewOpenAIEngine creates an HTTP synthesis client.
func NewOpenAIEngine(config OpenAIConfig) *OpenAIEngine {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com"
	}
	if config.Model == "" {
		config.Model = "tts-1"
	}
	if config.HTTPClient == nil {
		// Deadlines come from the caller's context.
		config.HTTPClient = &http.Client{}
	}
	if config.Logger == nil {
		config.Logger = log.Default().WithPrefix("openai")
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), config.RequestsPerMinute)
	}

	return &OpenAIEngine{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		model:       config.Model,
		httpClient:  config.HTTPClient,
		rateLimiter: limiter,
		logger:      config.Logger,
	}
}

// Name implements tts.Synthesizer.
func (e *OpenAIEngine) Name() string {
	return "openai"
}

// Synthesize posts req to /v1/audio/speech and returns the response body.
// The caller must close it.
func (e *OpenAIEngine) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}

	body, err := json.Marshal(speechRequest{
		Model:  e.model,
		Input:  req.Text,
		Voice:  req.Voice,
		Format: string(req.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	e.logger.Debug("requesting speech", "chars", len(req.Text), "voice", req.Voice, "format", req.Format)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp.Body, nil
}
