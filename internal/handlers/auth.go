package handlers

import (
	"net/http"
	"strings"

	"escrowdesk/internal/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	token, operator, err := h.operators.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"token":    token,
		"operator": operator,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	profile, err := h.operators.Profile(r.Context(), operatorID)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, profile)
}
