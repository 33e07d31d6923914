package espeak

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ekisa-team/eduvox/internal/backend"
)

const (
	defaultVoice     = "en"
	defaultRate      = 145
	defaultAmplitude = 90
)

// Parameters are the espeak-ng synthesis options. Rate is in words per
// minute and amplitude ranges 0-200.
type Parameters struct {
	Voice     string `mapstructure:"voice"`
	Rate      int    `mapstructure:"rate"`
	Amplitude *int   `mapstructure:"amplitude"`
	Pitch     *int   `mapstructure:"pitch"`
	WordGap   int    `mapstructure:"word_gap"`
}

// Backend implements backend.Backend for espeak-ng. It needs no model files.
type Backend struct {
	executor *backend.Executor
}

// NewBackend creates a new espeak-ng backend.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor), nil
}

// NewBackendWithExecutor creates an espeak-ng backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor) *Backend {
	return &Backend{executor: executor}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderEspeakNG
}

// Infer writes req.Input as speech to req.OutputPath.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.OutputPath == "" {
		return nil, backend.ErrOutputPathRequired
	}

	var params Parameters
	if err := backend.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	args := buildArgs(req.OutputPath, params)

	start := time.Now()
	_, stderr, err := b.executor.Execute(ctx, args, req.Input)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	var size int64
	if info, err := os.Stat(req.OutputPath); err == nil {
		size = info.Size()
	}

	return &backend.Response{
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           voiceOf(params),
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     size,
		},
	}, nil
}

func buildArgs(outputPath string, p Parameters) []string {
	rate := p.Rate
	if rate <= 0 {
		rate = defaultRate
	}
	amplitude := defaultAmplitude
	if p.Amplitude != nil {
		amplitude = *p.Amplitude
	}

	args := []string{
		"-w", outputPath,
		"--stdin",
		"-v", voiceOf(p),
		"-s", strconv.Itoa(rate),
		"-a", strconv.Itoa(amplitude),
	}

	if p.Pitch != nil {
		args = append(args, "-p", strconv.Itoa(*p.Pitch))
	}
	if p.WordGap > 0 {
		args = append(args, "-g", strconv.Itoa(p.WordGap))
	}

	return args
}

func voiceOf(p Parameters) string {
	if p.Voice == "" {
		return defaultVoice
	}
	return p.Voice
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}
