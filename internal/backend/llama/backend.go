package llama

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/eduvox/internal/backend"
)

// gpuAllLayers asks llama.cpp to offload every layer.
const gpuAllLayers = 999

// Parameters are the llama.cpp sampling and runtime options understood by this backend.
type Parameters struct {
	Temperature   *float64 `mapstructure:"temperature"`
	TopP          *float64 `mapstructure:"top_p"`
	RepeatPenalty *float64 `mapstructure:"repeat_penalty"`
	GPULayers     *int     `mapstructure:"n_gpu_layers"`
	SystemPrompt  string   `mapstructure:"system_prompt"`
	ContextSize   int      `mapstructure:"n_ctx"`
	NPredict      int      `mapstructure:"n_predict"`
	Threads       int      `mapstructure:"threads"`
	TopK          int      `mapstructure:"top_k"`
	Seed          int      `mapstructure:"seed"`
}

// Backend implements backend.Backend for the llama.cpp CLI.
type Backend struct {
	executor *backend.Executor
	device   backend.Device
}

// NewBackend creates a new Llama backend running binPath (llama-cli).
func NewBackend(binPath string, device backend.Device, timeout time.Duration) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor, device), nil
}

// NewBackendWithExecutor creates a Llama backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor, device backend.Device) *Backend {
	return &Backend{
		executor: executor,
		device:   device,
	}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderLlamaCPP
}

// Load checks that the model file can be opened.
func (b *Backend) Load(_ context.Context, modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("llama model unavailable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("llama model path %s is a directory", modelPath)
	}

	return nil
}

// ResolveModelPath returns basePath when it is a file, otherwise the first
// .gguf file found below it in lexical order.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	return backend.FindModelFile(basePath, ".gguf")
}

// Infer executes synchronous inference.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	var params Parameters
	if err := backend.DecodeParameters(req.Parameters, &params); err != nil {
		return nil, err
	}

	prompt, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	args := b.buildArgs(req.ModelPath, params)
	args = append(args, "--prompt", string(prompt))

	start := time.Now()
	stdout, stderr, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	text := parseOutput(string(stdout))

	return &backend.Response{
		Output: bytes.NewReader([]byte(text)),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"device": string(b.device),
				"stderr": string(stderr),
			},
		},
	}, nil
}

// buildArgs builds Llama command-line arguments.
func (b *Backend) buildArgs(modelPath string, p Parameters) []string {
	args := []string{"--model", modelPath}

	if p.SystemPrompt != "" {
		args = append(args, "--system-prompt", p.SystemPrompt)
	}
	if p.ContextSize > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(p.ContextSize))
	}

	nPredict := p.NPredict
	if nPredict <= 0 {
		nPredict = 64
	}
	args = append(args, "-n", strconv.Itoa(nPredict))

	switch {
	case p.GPULayers != nil:
		args = append(args, "-ngl", strconv.Itoa(*p.GPULayers))
	case b.device.IsGPU():
		args = append(args, "-ngl", strconv.Itoa(gpuAllLayers))
	default:
		args = append(args, "-ngl", "0")
	}

	if p.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(p.Threads))
	}
	if p.Temperature != nil {
		args = append(args, "--temp", formatFloat(*p.Temperature))
	}
	if p.TopP != nil {
		args = append(args, "--top-p", formatFloat(*p.TopP))
	}
	if p.TopK > 0 {
		args = append(args, "--top-k", strconv.Itoa(p.TopK))
	}
	if p.Seed != 0 {
		args = append(args, "--seed", strconv.Itoa(p.Seed))
	}

	repeatPenalty := 1.1
	if p.RepeatPenalty != nil {
		repeatPenalty = *p.RepeatPenalty
	}
	args = append(args, "--repeat-penalty", formatFloat(repeatPenalty))

	return append(args,
		"--no-warmup",
		"--no-display-prompt",
		"--simple-io",
		"--no-conversation",
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// parseOutput drops llama.cpp log lines and the end-of-text marker.
func parseOutput(output string) string {
	var result strings.Builder
	inGeneration := false

	for _, line := range strings.Split(output, "\n") {
		if !inGeneration && isLogLine(line) {
			continue
		}

		if strings.TrimSpace(line) != "" {
			inGeneration = true
		}

		if inGeneration {
			result.WriteString(line)
			result.WriteString("\n")
		}
	}

	text := strings.TrimSpace(result.String())
	return strings.TrimSpace(strings.TrimSuffix(text, "[end of text]"))
}

var logPrefixes = []string{
	"system_info:", "llama_", "ggml_", "print_info:", "load:", "main:", "sampler", "generate:", "build:",
}

func isLogLine(line string) bool {
	for _, prefix := range logPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Close cleans up resources. Llama does not have any resources to clean up.
func (b *Backend) Close() error {
	return nil
}
