package piper

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ekisa-team/eduvox/internal/backend"
)

// Parameters are the Piper synthesis options.
type Parameters struct {
	SpeakerID       *int     `mapstructure:"speaker_id"`
	LengthScale     *float64 `mapstructure:"length_scale"`
	NoiseScale      *float64 `mapstructure:"noise_scale"`
	NoiseW          *float64 `mapstructure:"noise_w"`
	SentenceSilence *float64 `mapstructure:"sentence_silence"`
}

// Backend implements backend.Backend for Piper TTS.
type Backend struct {
	executor *backend.Executor
}

// NewBackend creates a new Piper backend.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor), nil
}

// NewBackendWithExecutor creates a Piper backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor) *Backend {
	return &Backend{executor: executor}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderPiper
}

// Load checks that the voice model exists.
func (b *Backend) Load(_ context.Context, modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("piper voice unavailable: %w", err)
	}
	return nil
}

// ResolveModelPath locates the .onnx voice inside basePath.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	return backend.FindModelFile(basePath, ".onnx")
}

// Infer synthesizes req.Input into a WAV file at req.OutputPath.
// Piper reads text from stdin and only writes audio to a file.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.OutputPath == "" {
		return nil, backend.ErrOutputPathRequired
	}

	var params Parameters
	if err := backend.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	args := buildArgs(req.ModelPath, req.OutputPath, params)

	start := time.Now()
	stdout, stderr, err := b.executor.Execute(ctx, args, req.Input)
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
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     size,
			BackendSpecific: map[string]any{
				"stdout": string(stdout),
				"stderr": string(stderr),
			},
		},
	}, nil
}

func buildArgs(modelPath, outputPath string, p Parameters) []string {
	args := []string{
		"--model", modelPath,
		"--output_file", outputPath,
	}

	if p.SpeakerID != nil {
		args = append(args, "--speaker", strconv.Itoa(*p.SpeakerID))
	}
	if p.LengthScale != nil {
		args = append(args, "--length_scale", formatFloat(*p.LengthScale))
	}
	if p.NoiseScale != nil {
		args = append(args, "--noise_scale", formatFloat(*p.NoiseScale))
	}
	if p.NoiseW != nil {
		args = append(args, "--noise_w", formatFloat(*p.NoiseW))
	}
	if p.SentenceSilence != nil {
		args = append(args, "--sentence_silence", formatFloat(*p.SentenceSilence))
	}

	return args
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Close cleans up resources. Piper does not have any resources to clean up.
func (b *Backend) Close() error {
	return nil
}
