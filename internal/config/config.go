package config

import (
	"errors"
	"time"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"

	// SourceTypeLocal represents a model already present on local disk.
	SourceTypeLocal SourceType = "local"
)

// Config holds the main configuration for the application.
type Config struct {
	Models   map[string]ModelConfig `json:"models"             yaml:"models"`
	Version  string                 `json:"version"            yaml:"version"`
	Server   ServerConfig           `json:"server,omitempty"   yaml:"server,omitempty"`
	Storage  StorageConfig          `json:"storage,omitempty"  yaml:"storage,omitempty"`
	Services ServicesConfig         `json:"services"           yaml:"services"`
	Sessions SessionsConfig         `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

// ServerConfig holds listener and filesystem settings for the HTTP and gRPC servers.
type ServerConfig struct {
	Host      string `json:"host,omitempty"       yaml:"host,omitempty"`
	AudioDir  string `json:"audio_dir,omitempty"  yaml:"audio_dir,omitempty"`
	StaticDir string `json:"static_dir,omitempty" yaml:"static_dir,omitempty"`
	HTTPPort  int    `json:"http_port,omitempty"  yaml:"http_port,omitempty"`
	GRPCPort  int    `json:"grpc_port,omitempty"  yaml:"grpc_port,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// ModelConfig holds configuration for a specific model.
type ModelConfig struct {
	Source  SourceConfig `json:"source"  yaml:"source"`
	Type    string       `json:"type"    yaml:"type"`
	Backend string       `json:"backend" yaml:"backend"`
	Tags    []string     `json:"tags"    yaml:"tags"`
	Order   int          `json:"order"   yaml:"order"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	Local       *LocalSource       `json:"local,omitempty"       yaml:"local,omitempty"`
}

// ServicesConfig holds configuration for all services.
type ServicesConfig struct {
	LLM LLMServiceConfig `json:"llm" yaml:"llm"`
	TTS TTSServiceConfig `json:"tts" yaml:"tts"`
}

// ServiceBackendConfig selects and configures the backend a service runs on.
type ServiceBackendConfig struct {
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Backend    string         `json:"backend"              yaml:"backend"`
	Binary     string         `json:"binary,omitempty"     yaml:"binary,omitempty"`
	Models     []string       `json:"models"               yaml:"models"` // List of model IDs
}

// LLMServiceConfig configures text generation.
type LLMServiceConfig struct {
	ServiceBackendConfig `json:",inline" yaml:",inline"`

	// BaseURL is the OpenAI-compatible endpoint used by the openai backend.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey is sent as bearer token to BaseURL.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// ServerPort is where a managed llama-server listens.
	ServerPort int `json:"server_port,omitempty" yaml:"server_port,omitempty"`

	MaxPromptTokens int     `json:"max_prompt_tokens,omitempty" yaml:"max_prompt_tokens,omitempty"`
	MaxNewTokens    int     `json:"max_new_tokens,omitempty"    yaml:"max_new_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"       yaml:"temperature,omitempty"`
	TopP            float64 `json:"top_p,omitempty"             yaml:"top_p,omitempty"`
}

// TTSServiceConfig configures speech synthesis.
type TTSServiceConfig struct {
	ServiceBackendConfig `json:",inline" yaml:",inline"`

	Timeout      time.Duration `json:"timeout,omitempty"       yaml:"timeout,omitempty"`
	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// SessionsConfig bounds the in-memory session store. Zero values mean unbounded.
type SessionsConfig struct {
	MaxSessions int           `json:"max_sessions,omitempty" yaml:"max_sessions,omitempty"`
	TTL         time.Duration `json:"ttl,omitempty"          yaml:"ttl,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// LocalSource points at a model file or directory on disk.
type LocalSource struct {
	Path string `json:"path" yaml:"path"`
}

// Type returns the local source type.
func (l LocalSource) Type() SourceType {
	return SourceTypeLocal
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	if m.Source.HuggingFace != nil {
		return *m.Source.HuggingFace, nil
	}
	if m.Source.Local != nil {
		return *m.Source.Local, nil
	}

	return nil, errors.New("no source configured for model")
}

// SetHuggingFaceSource sets the Hugging Face source.
func (m *ModelConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	m.Source.HuggingFace = &source
	m.Source.Local = nil
}

// SetLocalSource sets the local source.
func (m *ModelConfig) SetLocalSource(source LocalSource) {
	m.Source.Local = &source
	m.Source.HuggingFace = nil
}

// RemoteLLMBackend names the LLM backend whose models are served by a remote
// endpoint and addressed by name rather than provisioned locally.
const RemoteLLMBackend = "openai"

// AssignedModels returns the IDs of every locally provisioned model referenced
// by a service, without duplicates.
func (c *Config) AssignedModels() []string {
	lists := [][]string{c.Services.TTS.Models}
	if c.Services.LLM.Backend != RemoteLLMBackend {
		lists = append([][]string{c.Services.LLM.Models}, lists...)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, list := range lists {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	return ids
}
