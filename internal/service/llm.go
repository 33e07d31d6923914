package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ekisa-team/eduvox/internal/backend"
	"github.com/ekisa-team/eduvox/internal/config"
	"github.com/ekisa-team/eduvox/internal/model"
	"github.com/ekisa-team/eduvox/internal/prompt"
)

// FallbackResponse is returned to the user whenever generation fails.
const FallbackResponse = "I'm having trouble processing that. Could you try again?"

// FailureReason classifies why a generation did not produce text.
type FailureReason string

const (
	ReasonBackendUnavailable FailureReason = "backend_unavailable"
	ReasonModelNotFound      FailureReason = "model_not_found"
	ReasonInference          FailureReason = "inference"
	ReasonEmptyOutput        FailureReason = "empty_output"
)

// GenerateRequest is a single generation call.
type GenerateRequest struct {
	SessionID string
	Mode      prompt.Mode
	Text      string
}

// Generation is the outcome of a generation call. A failed Generation has a
// non-empty Reason, carries FallbackResponse as Text and the cause in Err.
type Generation struct {
	Err    error
	Text   string
	Reason FailureReason
}

// OK reports whether generation succeeded.
func (g Generation) OK() bool {
	return g.Reason == ""
}

func failed(reason FailureReason, err error) Generation {
	return Generation{Text: FallbackResponse, Reason: reason, Err: err}
}

// LLM is a service abstraction for text generation.
type LLM struct {
	backends *backend.Registry
	models   *model.Manager
	config   config.Snapshotter
}

// NewLLM creates a new LLM service. Settings are read from cfg on every call.
func NewLLM(backends *backend.Registry, models *model.Manager, cfg config.Snapshotter) *LLM {
	return &LLM{
		backends: backends,
		models:   models,
		config:   cfg,
	}
}

// target is a resolved backend and model reference.
type target struct {
	backend  backend.Backend
	instance *model.ModelInstance
	model    string
}

func (s *LLM) resolve(cfg *config.LLMServiceConfig) (*target, FailureReason, error) {
	b, ok := s.backends.Get(backend.BackendProvider(cfg.Backend))
	if !ok {
		return nil, ReasonBackendUnavailable, fmt.Errorf("%w: %s", backend.ErrBackendNotFound, cfg.Backend)
	}

	locator, local := b.(backend.ModelLocator)
	if !local {
		if len(cfg.Models) == 0 {
			return nil, ReasonModelNotFound, ErrNoModelAssigned
		}
		return &target{backend: b, model: cfg.Models[0]}, "", nil
	}

	instance, err := s.models.First(model.ModelTypeLLM, cfg.Models)
	if err != nil {
		return nil, ReasonModelNotFound, err
	}

	path, err := locator.ResolveModelPath(instance.Path)
	if err != nil {
		return nil, ReasonModelNotFound, fmt.Errorf("%w: %s: %w", model.ErrModelNotFound, instance.ID, err)
	}

	return &target{backend: b, instance: instance, model: path}, "", nil
}

// Load resolves the generation backend and model and lets the backend verify
// it can serve them.
func (s *LLM) Load(ctx context.Context) error {
	cfg := s.config.Snapshot().Services.LLM

	t, _, err := s.resolve(&cfg)
	if err != nil {
		return err
	}

	if loader, ok := t.backend.(backend.Loader); ok {
		if err := loader.Load(ctx, t.model); err != nil {
			track(t.instance, err)
			return fmt.Errorf("failed to load %s with %s: %w", t.model, cfg.Backend, err)
		}
	}

	track(t.instance, nil)

	slog.Info("Generation model loaded", "backend", cfg.Backend, "model", t.model)
	return nil
}

// Generate produces a response for req. It never returns an error value;
// failures are reported through the Generation.
func (s *LLM) Generate(ctx context.Context, req GenerateRequest) Generation {
	cfg := s.config.Snapshot().Services.LLM

	t, reason, err := s.resolve(&cfg)
	if err != nil {
		return s.fail(req, reason, err)
	}

	text := prompt.BuildBounded(req.Mode, req.Text, cfg.MaxPromptTokens)
	params := backend.MergeParameters(cfg.Parameters, map[string]any{
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
		"n_predict":   cfg.MaxNewTokens,
	})

	start := time.Now()
	resp, err := t.backend.Infer(ctx, &backend.Request{
		Input:      strings.NewReader(text),
		Parameters: params,
		ModelPath:  t.model,
	})
	track(t.instance, err)
	if err != nil {
		return s.fail(req, ReasonInference, err)
	}

	raw, err := readOutput(resp)
	if err != nil {
		return s.fail(req, ReasonInference, err)
	}

	answer := ExtractAnswer(raw)
	if answer == "" {
		return s.fail(req, ReasonEmptyOutput, errors.New("model returned no text"))
	}

	slog.Debug("Generation completed",
		"session_id", req.SessionID,
		"mode", req.Mode,
		"backend", cfg.Backend,
		"duration", time.Since(start),
	)

	return Generation{Text: answer}
}

func (s *LLM) fail(req GenerateRequest, reason FailureReason, err error) Generation {
	slog.Error("Generation failed", "session_id", req.SessionID, "reason", reason, "error", err)
	return failed(reason, err)
}

// track records the outcome of a backend call on instance. Remote models
// have no instance.
func track(instance *model.ModelInstance, err error) {
	switch {
	case instance == nil:
	case err != nil:
		instance.SetError(err)
	case instance.CurrentStatus() != model.ModelStatusLoaded:
		instance.SetStatus(model.ModelStatusLoaded)
	}
}

func readOutput(resp *backend.Response) (string, error) {
	if resp == nil || resp.Output == nil {
		return "", nil
	}

	data, err := io.ReadAll(resp.Output)
	if err != nil {
		return "", fmt.Errorf("failed to read model output: %w", err)
	}
	return string(data), nil
}

// ExtractAnswer returns the text after the last assistant marker, trimmed.
// Text without a marker is returned trimmed.
func ExtractAnswer(decoded string) string {
	if i := strings.LastIndex(decoded, prompt.AssistantMarker); i >= 0 {
		decoded = decoded[i+len(prompt.AssistantMarker):]
	}
	return strings.TrimSpace(decoded)
}
