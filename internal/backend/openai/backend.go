package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ekisa-team/eduvox/internal/backend"
)

// ErrEmptyCompletion is returned when the endpoint answers without choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Parameters are the completion options understood by this backend.
// n_predict is accepted as an alias of max_tokens so llama.cpp parameter
// sets can be reused unchanged. When both are set n_predict wins, since it
// carries the service's configured output bound.
type Parameters struct {
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top_p"`
	Seed        *int     `mapstructure:"seed"`
	Stop        []string `mapstructure:"stop"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	NPredict    int      `mapstructure:"n_predict"`
}

// Config configures a completion client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Backend implements backend.Backend for any OpenAI-compatible completion endpoint.
// Models are addressed by name.
type Backend struct {
	client   *openai.Client
	provider backend.BackendProvider
	baseURL  string
}

// NewBackend creates a completion backend talking to cfg.BaseURL.
func NewBackend(cfg Config) *Backend {
	return newBackend(backend.BackendProviderOpenAI, cfg)
}

func newBackend(provider backend.BackendProvider, cfg Config) *Backend {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Backend{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		baseURL:  clientConfig.BaseURL,
	}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return b.provider
}

// Load checks the endpoint is reachable by listing its models.
func (b *Backend) Load(ctx context.Context, _ string) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.baseURL, err)
	}
	return nil
}

// Infer runs a single text completion.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	var params Parameters
	if err := backend.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	prompt, err := readAll(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := b.client.CreateCompletion(ctx, buildRequest(req.ModelPath, prompt, params))
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	text := resp.Choices[0].Text

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.provider,
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"finish_reason": resp.Choices[0].FinishReason,
				"id":            resp.ID,
			},
		},
	}, nil
}

func buildRequest(model, prompt string, p Parameters) openai.CompletionRequest {
	req := openai.CompletionRequest{
		Model:     model,
		Prompt:    prompt,
		MaxTokens: p.MaxTokens,
		Stop:      p.Stop,
		Seed:      p.Seed,
	}
	if p.NPredict > 0 {
		req.MaxTokens = p.NPredict
	}
	if p.Temperature != nil {
		req.Temperature = float32(*p.Temperature)
	}
	if p.TopP != nil {
		req.TopP = float32(*p.TopP)
	}

	return req
}

func readAll(req *backend.Request) (string, error) {
	if req.Input == nil {
		return "", nil
	}

	data, err := io.ReadAll(req.Input)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}
