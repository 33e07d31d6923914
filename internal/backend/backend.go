package backend

import (
	"context"
	"io"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderLlamaCPP    BackendProvider = "llama.cpp"
	BackendProviderLlamaServer BackendProvider = "llama-server"
	BackendProviderOpenAI      BackendProvider = "openai"
	BackendProviderPiper       BackendProvider = "piper"
	BackendProviderEspeakNG    BackendProvider = "espeak-ng"
)

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Infer executes inference and returns complete result.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Loader is an optional interface for backends that can verify, before serving,
// that a model is usable.
type Loader interface {
	Load(ctx context.Context, modelPath string) error
}

// Request encapsulates all parameters for an inference call.
type Request struct {
	// Input is the raw input data (prompt text or text to speak).
	Input io.Reader

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any

	// ModelPath is the path to the model file, or the model name for remote backends.
	ModelPath string

	// OutputPath is where file-producing backends write their result.
	OutputPath string
}

// Response contains the result of an inference operation.
type Response struct {
	// Output is the raw output data. Nil for backends that write to Request.OutputPath.
	Output io.Reader

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Timestamp       time.Time       `json:"timestamp"`
	BackendSpecific map[string]any  `json:"backend_specific,omitempty"`
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	OutputBytes     int64           `json:"output_bytes"`
	DurationSeconds float64         `json:"inference_time_seconds"`
}
