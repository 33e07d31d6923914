package http

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ekisa-team/eduvox/internal/service"
	"github.com/ekisa-team/eduvox/internal/session"
)

// Generator produces a response for a user prompt.
type Generator interface {
	Generate(ctx context.Context, req service.GenerateRequest) service.Generation
}

// Synthesizer renders response text to the session's audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, sessionID, text string) (string, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr      string
	AudioDir  string
	StaticDir string
	Version   string
}

// Server exposes Edu-Vox over HTTP.
type Server struct {
	api      huma.API
	mux      *http.ServeMux
	srv      *http.Server
	audioFS  fs.FS
	staticFS fs.FS
}

var sonicFormat = huma.Format{
	Marshal: func(w io.Writer, v any) error {
		return sonic.ConfigStd.NewEncoder(w).Encode(v)
	},
	Unmarshal: sonic.Unmarshal,
}

// New creates the HTTP server and registers every route.
func New(opts Options, generator Generator, synthesizer Synthesizer, sessions session.Store, models ModelLister) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("Edu-Vox API", opts.Version)
	config.Info.Description = "Educational voice assistant: mnemonics, explanations and quizzes with spoken answers."
	config.CreateHooks = nil
	config.Formats = map[string]huma.Format{
		"application/json": sonicFormat,
		"json":             sonicFormat,
	}

	s := &Server{
		api:      humago.New(mux, config),
		mux:      mux,
		audioFS:  os.DirFS(opts.AudioDir),
		staticFS: os.DirFS(opts.StaticDir),
	}

	NewProcessHandler(s.api, generator, synthesizer, sessions)
	NewInfoHandler(s.api, sessions, models)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.staticFS)))
	mux.HandleFunc("GET /audio/{filename}", s.handleAudio)

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// API returns the underlying huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return withRequestLogging(s.mux)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	slog.Info("HTTP server listening", "addr", l.Addr().String())

	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, s.staticFS, "index.html")
}

// handleAudio serves a generated audio file. Only plain file names inside
// the audio directory are served; dot files are synthesis output still being written.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !validFileName(name) {
		http.NotFound(w, r)
		return
	}

	if _, err := fs.Stat(s.audioFS, name); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if strings.EqualFold(filepath.Ext(name), ".wav") {
		w.Header().Set("Content-Type", "audio/wav")
	}
	http.ServeFileFS(w, r, s.audioFS, name)
}

func validFileName(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		fs.ValidPath(name) &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Base(name) == name
}
