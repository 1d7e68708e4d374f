package handlers

import (
	"net/http"

	"escrowdesk/internal/models"
	"escrowdesk/internal/services"

	"github.com/go-chi/chi/v5"
)

type createUserRequest struct {
	Name             string `json:"name"`
	TelegramUsername string `json:"telegram_username"`
	TelegramID       string `json:"telegram_id"`
	Type             string `json:"type"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.users.Create(r.Context(), services.CreateUserRequest{
		Name:             req.Name,
		TelegramUsername: req.TelegramUsername,
		TelegramID:       req.TelegramID,
		Type:             models.UserType(req.Type),
		Actor:            actorFrom(r),
	})
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusCreated, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, user)
}

func (h *Handler) GetUserByTelegram(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.FindByTelegram(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respondData(w, http.StatusOK, users)
}

type verifyUserRequest struct {
	Verified *bool `json:"verified"`
}

func (h *Handler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	req := verifyUserRequest{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}
	user, err := h.users.SetVerified(r.Context(), chi.URLParam(r, "id"), verified, actorFrom(r))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, user)
}
