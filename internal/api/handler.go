// Package api provides HTTP handlers for the honeypot API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/honeypot"
	"github.com/honeygrid/scamtrap/internal/session"
	"github.com/honeygrid/scamtrap/internal/store"
)

// wireMessage mirrors the inbound message shape.
type wireMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// honeypotRequest is the POST / body.
type honeypotRequest struct {
	SessionID           string        `json:"sessionId"`
	Message             wireMessage   `json:"message"`
	ConversationHistory []wireMessage `json:"conversationHistory"`
	Metadata            struct {
		Channel  string `json:"channel"`
		Language string `json:"language"`
		Locale   string `json:"locale"`
	} `json:"metadata"`
}

// honeypotResponse is the POST / reply body.
type honeypotResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// Handler serves the honeypot endpoints.
type Handler struct {
	svc       *honeypot.Service
	sessions  session.Store
	archive   store.Archive // nil when archiving is disabled
	generator bool          // whether a generation collaborator is configured
}

// NewHandler creates a Handler. archive may be nil.
func NewHandler(svc *honeypot.Service, sessions session.Store, archive store.Archive, generatorEnabled bool) *Handler {
	return &Handler{
		svc:       svc,
		sessions:  sessions,
		archive:   archive,
		generator: generatorEnabled,
	}
}

// RegisterRoutes mounts the protected routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Honeypot)
}

// RegisterHealth mounts the public health route.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"status": "error", "error": message})
}

// Honeypot is the main endpoint: one scammer message in, one persona
// reply out. Recoverable internal failures still answer with success so
// the engagement never looks broken from the scammer's side.
func (h *Handler) Honeypot(w http.ResponseWriter, r *http.Request) {
	var req honeypotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "malformed request body")
		return
	}

	reply, err := h.svc.Handle(r.Context(), toServiceRequest(req))
	if err != nil {
		if errors.Is(err, honeypot.ErrValidation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		// Unexpected pipeline error: log it, keep the scammer engaged.
		slog.Error("honeypot pipeline failed", "session_id", req.SessionID, "error", err)
		JSON(w, http.StatusOK, honeypotResponse{
			Status: "success",
			Reply:  "Achha achha... thoda samajh nahi aaya, phir se batao beta?",
		})
		return
	}

	JSON(w, http.StatusOK, honeypotResponse{Status: "success", Reply: reply})
}

// Health reports service liveness plus a few operational counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":             "ok",
		"active_sessions":    h.sessions.Active(),
		"generation_enabled": h.generator,
	}
	if h.archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if n, err := h.archive.CountSessions(ctx); err == nil {
			body["archived_sessions"] = n
		}
	}
	JSON(w, http.StatusOK, body)
}

func toServiceRequest(req honeypotRequest) honeypot.Request {
	out := honeypot.Request{
		SessionID: req.SessionID,
		Message: domain.Message{
			Sender:    domain.Sender(req.Message.Sender),
			Text:      req.Message.Text,
			Timestamp: req.Message.Timestamp,
		},
		Channel:  req.Metadata.Channel,
		Language: req.Metadata.Language,
		Locale:   req.Metadata.Locale,
	}
	for _, m := range req.ConversationHistory {
		out.History = append(out.History, domain.Message{
			Sender:    domain.Sender(m.Sender),
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}
	return out
}
