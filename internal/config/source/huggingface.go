package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/eduvox/internal/backend"
	"github.com/ekisa-team/eduvox/internal/config"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	attemptTimeout    = 10 * time.Minute
	markerFilename    = ".eduvox-downloaded"
	defaultHFBinary   = "hf"
)

// HuggingFaceDownloader fetches repositories with the hf CLI into
// <targetDir>/<repo>. A marker file records which snapshot was fetched so
// later runs skip the download until the source settings change.
type HuggingFaceDownloader struct {
	// Runner executes the CLI. Nil means os/exec.
	Runner backend.CommandRunner

	// Binary is the hf CLI to run. Empty means "hf" from PATH.
	Binary string

	// RetryDelay is the pause between failed attempts.
	RetryDelay time.Duration
}

// Download implements Downloader.
func (d *HuggingFaceDownloader) Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error) {
	src, err := modelConfig.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get model source: %w", err)
	}

	hf, ok := src.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	repo := strings.TrimSpace(hf.Repo)
	if repo == "" {
		return "", false, fmt.Errorf("invalid repo name: %q", hf.Repo)
	}

	dir := filepath.Join(targetDir, filepath.FromSlash(repo))
	marker := filepath.Join(dir, markerFilename)
	fingerprint := fingerprintOf(hf)

	if !hf.ForceDownload && markerMatches(marker, fingerprint) {
		slog.Debug("Model snapshot up to date", "repo", repo, "path", dir)
		return dir, true, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := d.fetch(ctx, repo, downloadArgs(hf, repo, dir)); err != nil {
		return "", false, err
	}

	if err := os.WriteFile(marker, []byte(fingerprint), 0o644); err != nil {
		slog.Warn("Failed to write download marker", "path", marker, "error", err)
	}

	return dir, false, nil
}

// fetch runs the CLI, retrying failed attempts until ctx is done.
func (d *HuggingFaceDownloader) fetch(ctx context.Context, repo string, args []string) error {
	var lastErr error
	for attempt := 1; attempt <= defaultMaxRetries; attempt++ {
		slog.Info("Downloading model", "repo", repo, "attempt", attempt)

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, stderr, err := d.runner().Run(attemptCtx, d.binary(), args, nil)
		cancel()

		if err == nil {
			slog.Info("Model downloaded", "repo", repo, "attempt", attempt)
			return nil
		}

		lastErr = fmt.Errorf("hf download %s: %w: %s", repo, err, strings.TrimSpace(string(stderr)))
		slog.Warn("Model download failed", "repo", repo, "attempt", attempt, "error", lastErr)

		if attempt == defaultMaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(d.retryDelay()):
		}
	}

	return lastErr
}

func downloadArgs(hf config.HuggingFaceSource, repo, dir string) []string {
	args := []string{"download", repo, "--local-dir", dir}

	if hf.Revision != "" {
		args = append(args, "--revision", hf.Revision)
	}
	if hf.RepoType != "" {
		args = append(args, "--repo-type", hf.RepoType)
	}
	for _, pattern := range hf.Include {
		args = append(args, "--include", pattern)
	}
	for _, pattern := range hf.Exclude {
		args = append(args, "--exclude", pattern)
	}
	if hf.ForceDownload {
		args = append(args, "--force-download")
	}
	if hf.Token != "" {
		args = append(args, "--token", hf.Token)
	}
	if hf.MaxWorkers > 0 {
		args = append(args, "--max-workers", strconv.Itoa(hf.MaxWorkers))
	}

	return args
}

// fingerprintOf captures the settings that decide which files end up on disk.
func fingerprintOf(hf config.HuggingFaceSource) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "repo: %s\n", strings.TrimSpace(hf.Repo))
	fmt.Fprintf(&sb, "revision: %s\n", hf.Revision)
	fmt.Fprintf(&sb, "include: %s\n", strings.Join(hf.Include, ","))
	fmt.Fprintf(&sb, "exclude: %s\n", strings.Join(hf.Exclude, ","))
	return sb.String()
}

func markerMatches(path, fingerprint string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return string(content) == fingerprint
}

func (d *HuggingFaceDownloader) runner() backend.CommandRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return backend.ExecCommandRunner{}
}

func (d *HuggingFaceDownloader) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return defaultHFBinary
}

func (d *HuggingFaceDownloader) retryDelay() time.Duration {
	if d.RetryDelay > 0 {
		return d.RetryDelay
	}
	return defaultRetryDelay
}
