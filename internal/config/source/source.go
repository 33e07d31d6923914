package source

import (
	"context"
	"fmt"
	"os"

	"github.com/ekisa-team/eduvox/internal/config"
	"github.com/ekisa-team/eduvox/internal/xfs"
)

// Downloader fetches a model into targetDir and returns the local path.
// The boolean reports whether the model was already present.
type Downloader interface {
	Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	case config.SourceTypeLocal:
		return &LocalDownloader{}, nil
	default:
		return nil, fmt.Errorf("unsupported model source: %s", sourceType)
	}
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	return xfs.EnsureDir(path)
}

// LocalDownloader resolves models that already live on disk.
type LocalDownloader struct{}

// Download checks that the configured path exists and returns it unchanged.
func (d *LocalDownloader) Download(_ context.Context, modelConfig *config.ModelConfig, _ string) (string, bool, error) {
	src, err := modelConfig.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get model source: %w", err)
	}

	local, ok := src.(config.LocalSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	path := xfs.ExpandTilde(local.Path)
	if _, err := os.Stat(path); err != nil {
		return "", false, fmt.Errorf("local model not available: %w", err)
	}

	return path, true, nil
}
