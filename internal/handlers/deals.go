package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"escrowdesk/internal/models"
	"escrowdesk/internal/services"
	"escrowdesk/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createDealRequest struct {
	ListingID  int64           `json:"listing_id"`
	BuyerID    string          `json:"buyer_id"`
	SellerID   string          `json:"seller_id"`
	USDTAmount decimal.Decimal `json:"usdt_amount"`
}

type dealResponse struct {
	models.Deal
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func (h *Handler) dealView(deal models.Deal) dealResponse {
	return dealResponse{Deal: deal, RemainingSeconds: h.deals.RemainingSeconds(deal)}
}

func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	deal, err := h.deals.CreateDeal(r.Context(), services.CreateDealRequest{
		ListingID:  req.ListingID,
		BuyerID:    req.BuyerID,
		SellerID:   req.SellerID,
		USDTAmount: req.USDTAmount,
		Actor:      actorFrom(r),
	})
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusCreated, h.dealView(deal))
}

func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := h.deals.Get(r.Context(), chi.URLParam(r, "trade_code"))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, h.dealView(deal))
}

func (h *Handler) DealHistory(w http.ResponseWriter, r *http.Request) {
	deal, err := h.deals.Get(r.Context(), chi.URLParam(r, "trade_code"))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	entries, err := h.audit.History(r.Context(), "deal", deal.TradeCode)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	respondData(w, http.StatusOK, entries)
}

type transitionFunc func(ctx context.Context, code string, actor services.Actor) (models.Deal, error)

// transition serves one operator-triggered deal change. On a rejected
// change the current deal rides along in the 409 body.
func (h *Handler) transition(apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deal, err := apply(r.Context(), chi.URLParam(r, "trade_code"), actorFrom(r))
		if err != nil {
			var current any
			if deal.TradeCode != "" {
				current = h.dealView(deal)
			}
			h.respondServiceError(w, r, err, current)
			return
		}
		respondData(w, http.StatusOK, h.dealView(deal))
	}
}

func (h *Handler) ConfirmEscrow(w http.ResponseWriter, r *http.Request) {
	h.transition(h.deals.ConfirmEscrow)(w, r)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(h.deals.ConfirmPayment)(w, r)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.transition(h.deals.Release)(w, r)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(h.deals.Cancel)(w, r)
}

func (h *Handler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	h.transition(h.deals.RaiseDispute)(w, r)
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	h.transition(func(ctx context.Context, code string, actor services.Actor) (models.Deal, error) {
		return h.deals.ResolveDispute(ctx, code, models.DealStatus(req.Outcome), actor)
	})(w, r)
}

// WSDeal streams status changes of one deal, starting with its current state.
func (h *Handler) WSDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := h.deals.Get(r.Context(), chi.URLParam(r, "trade_code"))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	snapshot, _ := json.Marshal(websocket.DealUpdate{
		TradeCode:        deal.TradeCode,
		Status:           string(deal.Status),
		RemainingSeconds: h.deals.RemainingSeconds(deal),
		UpdatedAt:        deal.UpdatedAt,
	})
	websocket.ServeWS(w, r, h.hub, deal.TradeCode, snapshot)
}
