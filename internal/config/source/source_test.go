package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/eduvox/internal/config"
)

func TestGetDownloader(t *testing.T) {
	d, err := GetDownloader(context.Background(), config.SourceTypeHuggingFace)
	require.NoError(t, err)
	assert.IsType(t, &HuggingFaceDownloader{}, d)

	d, err = GetDownloader(context.Background(), config.SourceTypeLocal)
	require.NoError(t, err)
	assert.IsType(t, &LocalDownloader{}, d)

	_, err = GetDownloader(context.Background(), config.SourceType("s3"))
	assert.Error(t, err)
}

func TestLocalDownloader(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "voice.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o644))

	var mc config.ModelConfig
	mc.SetLocalSource(config.LocalSource{Path: modelPath})

	path, cached, err := (&LocalDownloader{}).Download(context.Background(), &mc, "")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, modelPath, path)

	mc.SetLocalSource(config.LocalSource{Path: modelPath + ".missing"})
	_, _, err = (&LocalDownloader{}).Download(context.Background(), &mc, "")
	assert.ErrorContains(t, err, "local model not available")
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	a := m.Called(ctx, name, args, stdin)
	return nil, []byte(a.String(0)), a.Error(1)
}

func hfModel(src config.HuggingFaceSource) *config.ModelConfig {
	var mc config.ModelConfig
	mc.SetHuggingFaceSource(src)
	return &mc
}

func TestHuggingFaceDownloader_Download(t *testing.T) {
	target := t.TempDir()
	src := config.HuggingFaceSource{
		Repo:     "TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF",
		Revision: "main",
		Include:  []string{"*Q4_K_M.gguf"},
	}
	dir := filepath.Join(target, "TheBloke", "TinyLlama-1.1B-Chat-v1.0-GGUF")

	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "hf", []string{
		"download", src.Repo, "--local-dir", dir, "--revision", "main", "--include", "*Q4_K_M.gguf",
	}, mock.Anything).Return("", nil).Once()

	d := &HuggingFaceDownloader{Runner: runner}

	path, cached, err := d.Download(context.Background(), hfModel(src), target)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, dir, path)
	assert.FileExists(t, filepath.Join(dir, markerFilename))

	path, cached, err = d.Download(context.Background(), hfModel(src), target)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, dir, path)

	runner.AssertExpectations(t)
}

func TestHuggingFaceDownloader_RedownloadsWhenSourceChanges(t *testing.T) {
	target := t.TempDir()
	src := config.HuggingFaceSource{Repo: "rhasspy/piper-voices", Include: []string{"en/en_US/amy/*"}}

	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "hf", mock.Anything, mock.Anything).Return("", nil).Twice()

	d := &HuggingFaceDownloader{Runner: runner}
	_, _, err := d.Download(context.Background(), hfModel(src), target)
	require.NoError(t, err)

	src.Include = []string{"en/en_US/lessac/*"}
	_, cached, err := d.Download(context.Background(), hfModel(src), target)
	require.NoError(t, err)
	assert.False(t, cached)

	runner.AssertExpectations(t)
}

func TestHuggingFaceDownloader_Retries(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "hf", mock.Anything, mock.Anything).Return("connection reset", assert.AnError).Times(defaultMaxRetries)

	d := &HuggingFaceDownloader{Runner: runner, RetryDelay: time.Millisecond}
	_, _, err := d.Download(context.Background(), hfModel(config.HuggingFaceSource{Repo: "a/b"}), t.TempDir())

	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "connection reset")
	runner.AssertExpectations(t)
}

func TestHuggingFaceDownloader_StopsOnCancel(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "hf", mock.Anything, mock.Anything).Return("", assert.AnError).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &HuggingFaceDownloader{Runner: runner, RetryDelay: time.Hour}
	_, _, err := d.Download(ctx, hfModel(config.HuggingFaceSource{Repo: "a/b"}), t.TempDir())

	assert.ErrorIs(t, err, context.Canceled)
	runner.AssertExpectations(t)
}

func TestHuggingFaceDownloader_RejectsEmptyRepo(t *testing.T) {
	_, _, err := (&HuggingFaceDownloader{}).Download(context.Background(), hfModel(config.HuggingFaceSource{Repo: "  "}), t.TempDir())
	assert.ErrorContains(t, err, "invalid repo name")
}
