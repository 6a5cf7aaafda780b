package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/engine"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// kindParam validates the {kind} route parameter.
func kindParam(w http.ResponseWriter, r *http.Request) (models.MessageKind, bool) {
	kind := models.MessageKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "unknown message kind")
		return "", false
	}
	return kind, true
}

type startPayload struct {
	ProfileID   string              `json:"profile_id"`
	Message     string              `json:"message"`
	Attachments []models.Attachment `json:"attachments"`
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identify(w, r)
	if !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var p startPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.sup.Start(engine.StartRequest{
		SessionID:     id.SessionID,
		OperatorEmail: id.Email,
		ProfileID:     p.ProfileID,
		Kind:          kind,
		Message:       p.Message,
		Attachments:   p.Attachments,
		Credentials:   id.creds,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": true, "profile_id": p.ProfileID})
}

type profilePayload struct {
	ProfileID string `json:"profile_id"`
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identify(w, r); !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var p profilePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stopped := s.sup.Stop(p.ProfileID, kind)
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped, "profile_id": p.ProfileID})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identify(w, r); !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		writeError(w, http.StatusBadRequest, "profile_id is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"profile_id": profileID,
		"status":     s.sup.Status(profileID, kind),
	})
}

func (s *Service) handleClearBlocks(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identify(w, r); !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var p profilePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cleared := s.sup.ClearBlocks(p.ProfileID, kind)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared, "profile_id": p.ProfileID})
}

func (s *Service) handleBlocks(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identify(w, r); !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": s.blocks.Snapshot(kind)})
}

func (s *Service) handleStates(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identify(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": s.states.StatesByEmail(id.Email)})
}

func (s *Service) handleSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identify(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.states.SessionsByEmail(id.Email)})
}

func (s *Service) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identify(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": s.sup.StopAll()})
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identify(w, r)
	if !ok {
		return
	}
	s.states.RemoveSession(id.SessionID)
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (s *Service) handleAttachments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identify(w, r)
	if !ok {
		return
	}

	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		writeError(w, http.StatusBadRequest, "profile_id is required")
		return
	}
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = "images"
	}

	files, err := s.api.ListAttachments(r.Context(), id.creds, profileID, kind)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": files})
}
