package handlers

import (
	"context"
	"net/http"
	"strconv"

	"escrowdesk/internal/models"
	"escrowdesk/internal/services"
	"escrowdesk/internal/store"
)

// AdminListDeals lists deals for review. Without ?status= it shows paid deals
// waiting for a release.
func (h *Handler) AdminListDeals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.DealFilter{
		Status: models.DealPaid,
		UserID: query.Get("user_id"),
	}
	if status := query.Get("status"); status != "" {
		filter.Status = models.DealStatus(status)
		if status == "all" {
			filter.Status = ""
		} else if !filter.Status.Valid() {
			respondError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	if raw := query.Get("listing_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid listing_id")
			return
		}
		filter.ListingID = id
	}
	limit, offset := pagination(r)
	deals, err := h.dealList.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	stats, err := h.dealList.Stats(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	views := make([]dealResponse, 0, len(deals))
	for _, deal := range deals {
		views = append(views, h.dealView(deal))
	}
	respondData(w, http.StatusOK, map[string]any{
		"deals": views,
		"stats": stats,
	})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := pagination(r)
	entries, err := h.audit.List(r.Context(), store.AuditFilter{
		EntityType: query.Get("entity_type"),
		EntityID:   query.Get("entity_id"),
		Action:     query.Get("action"),
	}, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	respondData(w, http.StatusOK, entries)
}

// TailEvents reads the deal journal after ?after=N.
func (h *Handler) TailEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = parsed
	}
	limit, _ := pagination(r)
	events, err := h.events.After(after, limit)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	if events == nil {
		events = []models.DealEvent{}
	}
	respondData(w, http.StatusOK, map[string]any{
		"events":  events,
		"current": h.events.CurrentIndex(),
	})
}

type createOperatorRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	IsSuper  bool     `json:"is_super"`
	Roles    []string `json:"roles"`
}

func (h *Handler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req createOperatorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	operator, err := h.operators.Create(r.Context(), services.CreateOperatorRequest{
		Username: req.Username,
		Password: req.Password,
		IsSuper:  req.IsSuper,
		Roles:    req.Roles,
		Actor:    actorFrom(r),
	})
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusCreated, operator)
}

func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := h.operators.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	if operators == nil {
		operators = []models.Operator{}
	}
	respondData(w, http.StatusOK, operators)
}

type roleRequest struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.operators.GrantRole, "granted")
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.operators.RevokeRole, "revoked")
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, operatorID, role string, actor services.Actor) error, status string) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil || req.OperatorID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := apply(r.Context(), req.OperatorID, req.Role, actorFrom(r)); err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, map[string]string{
		"operator_id": req.OperatorID,
		"role":        req.Role,
		"status":      status,
	})
}
