package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/eduvox/internal/model"
	"github.com/ekisa-team/eduvox/internal/prompt"
	"github.com/ekisa-team/eduvox/internal/session"
)

// ModelLister reports the provisioned models and their load status.
type ModelLister interface {
	Models() []model.Info
}

type (
	ModesOutput struct {
		Body struct {
			Modes []prompt.ModeInfo `json:"modes"`
		}
	}

	HealthOutput struct {
		Body struct {
			Status string `json:"status" example:"healthy"`
		}
	}

	ModelsInput struct {
		Type string `query:"type" enum:"llm,tts" doc:"Only list models used by this service"`
	}

	ModelsOutput struct {
		Body struct {
			Models []model.Info `json:"models"`
		}
	}

	SessionInput struct {
		SessionID string `path:"session_id" pattern:"^[A-Za-z0-9_-]{1,128}$"`
	}

	SessionOutput struct {
		Body struct {
			SessionID string         `json:"session_id"`
			Turns     []session.Turn `json:"turns"`
		}
	}
)

// InfoHandler serves the read-only routes.
type InfoHandler struct {
	sessions session.Store
	models   ModelLister
}

// NewInfoHandler registers the read-only routes on api. models may be nil.
func NewInfoHandler(api huma.API, sessions session.Store, models ModelLister) *InfoHandler {
	h := &InfoHandler{sessions: sessions, models: models}

	huma.Register(api, huma.Operation{
		OperationID: "list-modes",
		Method:      http.MethodGet,
		Path:        "/modes",
		Summary:     "List answer modes",
		Tags:        []string{"assistant"},
	}, h.handleModes)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Tags:        []string{"system"},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/models",
		Summary:     "List provisioned models and their load status",
		Tags:        []string{"system"},
	}, h.handleModels)

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}",
		Summary:     "Get the conversation history of a session",
		Tags:        []string{"assistant"},
		Errors:      []int{http.StatusNotFound},
	}, h.handleSession)

	return h
}

func (h *InfoHandler) handleModes(_ context.Context, _ *struct{}) (*ModesOutput, error) {
	out := &ModesOutput{}
	out.Body.Modes = prompt.Modes()
	return out, nil
}

func (h *InfoHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "healthy"
	return out, nil
}

func (h *InfoHandler) handleModels(_ context.Context, input *ModelsInput) (*ModelsOutput, error) {
	out := &ModelsOutput{}
	out.Body.Models = []model.Info{}
	if h.models == nil {
		return out, nil
	}

	for _, info := range h.models.Models() {
		if input.Type == "" || string(info.Type) == input.Type {
			out.Body.Models = append(out.Body.Models, info)
		}
	}
	return out, nil
}

func (h *InfoHandler) handleSession(_ context.Context, input *SessionInput) (*SessionOutput, error) {
	s, ok := h.sessions.Get(input.SessionID)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}

	out := &SessionOutput{}
	out.Body.SessionID = s.ID
	out.Body.Turns = s.Turns
	return out, nil
}
