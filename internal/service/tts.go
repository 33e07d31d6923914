package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekisa-team/eduvox/internal/backend"
	"github.com/ekisa-team/eduvox/internal/config"
	"github.com/ekisa-team/eduvox/internal/model"
	"github.com/ekisa-team/eduvox/internal/session"
	"github.com/ekisa-team/eduvox/internal/xfs"
)

// AudioFilename returns the file name of the audio generated for sessionID.
func AudioFilename(sessionID string) string {
	return "output_" + sessionID + ".wav"
}

// TTS is a service abstraction for text-to-speech.
type TTS struct {
	backends *backend.Registry
	models   *model.Manager
	config   config.Snapshotter
	audioDir string
}

// NewTTS creates a new TTS service writing into audioDir.
func NewTTS(backends *backend.Registry, models *model.Manager, cfg config.Snapshotter, audioDir string) *TTS {
	return &TTS{
		backends: backends,
		models:   models,
		config:   cfg,
		audioDir: audioDir,
	}
}

// Synthesize renders text to <audioDir>/output_<sessionID>.wav and returns
// that path. The engine writes to a unique temporary file which replaces the
// session's previous audio only once complete. On failure the session's
// previous audio is removed. ErrAudioUnavailable means the file did not
// appear within the configured timeout.
func (s *TTS) Synthesize(ctx context.Context, sessionID, text string) (string, error) {
	if !session.ValidID(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}

	cfg := s.config.Snapshot().Services.TTS

	if err := xfs.EnsureDir(s.audioDir); err != nil {
		return "", err
	}

	final := filepath.Join(s.audioDir, AudioFilename(sessionID))
	tmp := filepath.Join(s.audioDir, fmt.Sprintf(".output_%s-%s.wav", sessionID, uuid.NewString()))

	b, instance, modelPath, err := s.resolve(&cfg)
	if err != nil {
		discard(final)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := b.Infer(ctx, &backend.Request{
			Input:      strings.NewReader(text),
			Parameters: cfg.Parameters,
			ModelPath:  modelPath,
			OutputPath: tmp,
		})
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		go func() {
			<-done
			discard(tmp)
		}()
		discard(final)
		return "", ErrAudioUnavailable
	}

	if err != nil {
		discard(tmp)
		discard(final)
		if ctx.Err() != nil {
			return "", ErrAudioUnavailable
		}
		track(instance, err)
		return "", fmt.Errorf("speech synthesis failed: %w", err)
	}

	if err := xfs.WaitForFile(ctx, tmp, cfg.PollInterval); err != nil {
		discard(tmp)
		discard(final)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", ErrAudioUnavailable
		}
		return "", err
	}

	if err := os.Rename(tmp, final); err != nil {
		discard(tmp)
		return "", fmt.Errorf("failed to publish audio file: %w", err)
	}

	track(instance, nil)
	slog.Debug("Speech synthesized", "session_id", sessionID, "path", final, "duration", time.Since(start))
	return final, nil
}

func (s *TTS) resolve(cfg *config.TTSServiceConfig) (backend.Backend, *model.ModelInstance, string, error) {
	b, ok := s.backends.Get(backend.BackendProvider(cfg.Backend))
	if !ok {
		return nil, nil, "", fmt.Errorf("%w: %s", backend.ErrBackendNotFound, cfg.Backend)
	}

	locator, local := b.(backend.ModelLocator)
	if !local {
		if len(cfg.Models) > 0 {
			return b, nil, cfg.Models[0], nil
		}
		return b, nil, "", nil
	}

	instance, err := s.models.First(model.ModelTypeTTS, cfg.Models)
	if err != nil {
		return nil, nil, "", err
	}

	path, err := locator.ResolveModelPath(instance.Path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %s: %w", model.ErrModelNotFound, instance.ID, err)
	}

	return b, instance, path, nil
}

func discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove audio file", "path", path, "error", err)
	}
}
