package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"escrowdesk/internal/db"
	"escrowdesk/internal/middleware"
	"escrowdesk/internal/services"

	"go.uber.org/zap"
)

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "message": message})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// data, when not nil, is the current record the caller can act on.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, data any) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		transition *services.InvalidTransitionError
	)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": validation.Error(),
			"field":   validation.Field,
		})
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &transition):
		body := map[string]any{
			"success":        false,
			"message":        transition.Error(),
			"current_status": transition.Current,
			"action":         transition.Action,
		}
		if data != nil {
			body["data"] = data
		}
		respondJSON(w, http.StatusConflict, body)
	case db.IsUniqueViolation(err):
		respondError(w, http.StatusConflict, "already exists")
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func actorFrom(r *http.Request) services.Actor {
	operatorID, _ := middleware.OperatorIDFromContext(r.Context())
	return services.Actor{
		ID:        operatorID,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
