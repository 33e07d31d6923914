package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dimiro1/banner"

	"github.com/ekisa-team/eduvox/internal/backend"
	"github.com/ekisa-team/eduvox/internal/config"
	"github.com/ekisa-team/eduvox/internal/env"
	"github.com/ekisa-team/eduvox/internal/logger"
	"github.com/ekisa-team/eduvox/internal/model"
	grpcserver "github.com/ekisa-team/eduvox/internal/server/grpc"
	httpserver "github.com/ekisa-team/eduvox/internal/server/http"
	"github.com/ekisa-team/eduvox/internal/service"
	"github.com/ekisa-team/eduvox/internal/session"
	"github.com/ekisa-team/eduvox/internal/xfs"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

type flags struct {
	configPath string
	schemaPath string
	logFile    string
	httpPort   int
	grpcPort   int
}

func main() {
	var f flags
	flag.IntVar(&f.httpPort, "http-port", 0, "HTTP port to listen on (overrides config)")
	flag.IntVar(&f.grpcPort, "grpc-port", 0, "gRPC port to listen on (overrides config)")
	flag.StringVar(&f.configPath, "config", filepath.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
	flag.StringVar(&f.schemaPath, "schema", "", "Path to schema file (embedded schema when empty)")
	flag.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this rotating file")
	flag.Parse()

	environment := env.FromEnv()

	slog.SetDefault(
		logger.New(environment,
			logger.WithLogToFile(f.logFile != ""),
			logger.WithLogFile(f.logFile),
		),
	)

	printBanner()

	if err := run(f); err != nil {
		slog.Error("Edu-Vox stopped", "error", err)
		os.Exit(1)
	}
}

func printBanner() {
	tpl := "{{ .Title \"Edu-Vox\" \"\" 0 }}\n{{ .AnsiColor.BrightCyan }}Version: " + version +
		" | Go: {{ .GoVersion }} | {{ .GOOS }}/{{ .GOARCH }}{{ .AnsiColor.Default }}\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func run(f flags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	manager := model.NewManager()

	watcher, err := config.NewWatcher(f.configPath, f.schemaPath, func(cfg *config.Config, err error) {
		if err != nil {
			return
		}

		if err := manager.LoadModelsFromConfig(ctx, cfg); err != nil {
			slog.Error("Failed to load models from config", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	cfg := watcher.Snapshot()
	slog.Info("Config loaded successfully", "config", f.configPath)

	httpPort, grpcPort := cfg.Server.HTTPPort, cfg.Server.GRPCPort
	if f.httpPort > 0 {
		httpPort = f.httpPort
	}
	if f.grpcPort > 0 {
		grpcPort = f.grpcPort
	}

	for _, dir := range []string{cfg.Server.AudioDir, cfg.Server.StaticDir} {
		if err := xfs.EnsureDir(dir); err != nil {
			return err
		}
	}

	device := backend.DetectDevice()
	slog.Info("Compute device detected", "device", device)

	if err := manager.LoadModelsFromConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to load models from config: %w", err)
	}

	servers := backend.NewServerManager()
	defer servers.StopAll()

	backends, err := registerBackends(cfg, device, servers)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			slog.Error("Failed to close backends", "error", err)
		}
	}()

	llm := service.NewLLM(backends, manager, watcher)
	if err := llm.Load(ctx); err != nil {
		return fmt.Errorf("failed to load generation model: %w", err)
	}

	tts := service.NewTTS(backends, manager, watcher, cfg.Server.AudioDir)

	sessions := session.NewMemory(
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithTTL(cfg.Sessions.TTL),
	)

	httpSrv := httpserver.New(httpserver.Options{
		Addr:      net.JoinHostPort(cfg.Server.Host, strconv.Itoa(httpPort)),
		AudioDir:  cfg.Server.AudioDir,
		StaticDir: cfg.Server.StaticDir,
		Version:   version,
	}, llm, tts, sessions, manager)
	grpcSrv := grpcserver.New()

	httpLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(httpPort)))
	if err != nil {
		return fmt.Errorf("failed to listen for HTTP: %w", err)
	}
	grpcLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(grpcPort)))
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Serve(httpLn) }()
	go func() { errCh <- grpcSrv.Serve(grpcLn) }()

	grpcSrv.SetServing(true)
	slog.Info("Edu-Vox ready",
		"http", httpLn.Addr().String(),
		"grpc", grpcLn.Addr().String(),
		"llm_backend", cfg.Services.LLM.Backend,
		"tts_backend", cfg.Services.TTS.Backend,
	)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			slog.Error("Server failed", "error", serveErr)
		}
	}

	grpcSrv.SetServing(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	grpcSrv.Stop()

	return errors.Join(errs...)
}
