package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/eduvox/internal/prompt"
	"github.com/ekisa-team/eduvox/internal/service"
	"github.com/ekisa-team/eduvox/internal/session"
)

// Canned responses that never reach the model.
const (
	EmptyInputResponse = "Please say something so I can help you."
	InactiveResponse   = "Edu-Vox is now inactive. Say hello to start again!"
	AudioErrorMessage  = "Failed to generate audio"
)

var stopPhrases = []string{"stop", "quit", "exit"}

type (
	ProcessRequestDTO struct {
		Text      string `json:"text,omitempty" maxLength:"4096" doc:"What the user said"`
		SessionID string `json:"session_id,omitempty" pattern:"^[A-Za-z0-9_-]{0,128}$" doc:"Conversation identifier, defaults to \"default\""`
		Mode      string `json:"mode,omitempty" doc:"One of mnemonic, explain or quiz; unknown values use mnemonic"`
	}

	ProcessResponseDTO struct {
		Response  string `json:"response"`
		Audio     string `json:"audio,omitempty"`
		Error     string `json:"error,omitempty"`
		SessionID string `json:"session_id"`
	}
)

type (
	ProcessInput struct {
		Body ProcessRequestDTO
	}

	ProcessOutput struct {
		Status int
		Body   ProcessResponseDTO
	}
)

// ProcessHandler handles the main question/answer route.
type ProcessHandler struct {
	generator   Generator
	synthesizer Synthesizer
	sessions    session.Store
}

// NewProcessHandler registers POST /process on api.
func NewProcessHandler(api huma.API, generator Generator, synthesizer Synthesizer, sessions session.Store) *ProcessHandler {
	h := &ProcessHandler{
		generator:   generator,
		synthesizer: synthesizer,
		sessions:    sessions,
	}

	huma.Register(api, huma.Operation{
		OperationID:   "process",
		Method:        http.MethodPost,
		Path:          "/process",
		Summary:       "Answer a prompt with text and speech",
		Tags:          []string{"assistant"},
		DefaultStatus: http.StatusOK,
	}, h.handleProcess)

	return h
}

func (h *ProcessHandler) handleProcess(ctx context.Context, input *ProcessInput) (*ProcessOutput, error) {
	sessionID := input.Body.SessionID
	if sessionID == "" {
		sessionID = session.DefaultID
	}

	text := input.Body.Text
	response := h.respond(ctx, sessionID, prompt.ParseMode(input.Body.Mode), text)

	if _, err := h.synthesizer.Synthesize(ctx, sessionID, response); err != nil {
		if errors.Is(err, service.ErrAudioUnavailable) {
			slog.Error("Failed to create audio file", "session_id", sessionID)
		} else {
			slog.Error("Speech synthesis failed", "session_id", sessionID, "error", err)
		}

		return &ProcessOutput{
			Status: http.StatusInternalServerError,
			Body: ProcessResponseDTO{
				Response:  response,
				Error:     AudioErrorMessage,
				SessionID: sessionID,
			},
		}, nil
	}

	return &ProcessOutput{
		Status: http.StatusOK,
		Body: ProcessResponseDTO{
			Response:  response,
			Audio:     "/audio/" + service.AudioFilename(sessionID),
			SessionID: sessionID,
		},
	}, nil
}

// respond picks the response text: canned for empty input and stop phrases,
// generated otherwise. Only successful generations are recorded.
func (h *ProcessHandler) respond(ctx context.Context, sessionID string, mode prompt.Mode, text string) string {
	switch {
	case strings.TrimSpace(text) == "":
		return EmptyInputResponse
	case isStopPhrase(text):
		return InactiveResponse
	}

	h.sessions.GetOrCreate(sessionID)

	g := h.generator.Generate(ctx, service.GenerateRequest{
		SessionID: sessionID,
		Mode:      mode,
		Text:      text,
	})
	if g.OK() {
		h.sessions.Append(sessionID, session.Turn{User: text, Assistant: g.Text})
	}

	return g.Text
}

func isStopPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range stopPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
