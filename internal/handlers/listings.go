package handlers

import (
	"net/http"
	"strconv"

	"escrowdesk/internal/models"
	"escrowdesk/internal/services"
	"escrowdesk/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createListingRequest struct {
	UserID        *string          `json:"user_id"`
	Type          string           `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	Rate          decimal.Decimal  `json:"rate"`
	PaymentMethod string           `json:"payment_method"`
	Contact       string           `json:"contact"`
	MinAmount     *decimal.Decimal `json:"min_amount"`
	MaxAmount     *decimal.Decimal `json:"max_amount"`
	Description   string           `json:"description"`
}

type listingsResponse struct {
	Success    bool             `json:"success"`
	Data       []models.Listing `json:"data"`
	Total      int64            `json:"total"`
	BuyOrders  int64            `json:"buy_orders"`
	SellOrders int64            `json:"sell_orders"`
}

// ListListings returns active listings newest first unless ?status= says otherwise.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.ListingFilter{
		Side:          models.Side(query.Get("type")),
		PaymentMethod: query.Get("payment_method"),
		Status:        models.ListingActive,
	}
	if status := query.Get("status"); status != "" {
		filter.Status = models.ListingStatus(status)
	}
	limit, _ := pagination(r)

	listings := make([]models.Listing, 0, limit)
	for listing, err := range h.listings.List(r.Context(), filter) {
		if err != nil {
			h.respondServiceError(w, r, err, nil)
			return
		}
		listings = append(listings, listing)
		if len(listings) == limit {
			break
		}
	}
	counts, err := h.listings.Counts(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, listingsResponse{
		Success:    true,
		Data:       listings,
		Total:      counts.Total,
		BuyOrders:  counts.Buy,
		SellOrders: counts.Sell,
	})
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	listing, err := h.listings.Create(r.Context(), services.CreateListingRequest{
		UserID:        req.UserID,
		Side:          models.Side(req.Type),
		Amount:        req.Amount,
		Rate:          req.Rate,
		PaymentMethod: req.PaymentMethod,
		MinAmount:     optionalDecimal(req.MinAmount),
		MaxAmount:     optionalDecimal(req.MaxAmount),
		Contact:       req.Contact,
		Description:   req.Description,
		Actor:         actorFrom(r),
	})
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusCreated, listing)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	listing, err := h.listings.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, listing)
}

func (h *Handler) CloseListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	listing, err := h.listings.Close(r.Context(), id, actorFrom(r))
	if err != nil {
		h.respondServiceError(w, r, err, nil)
		return
	}
	respondData(w, http.StatusOK, listing)
}

func listingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid listing id")
		return 0, false
	}
	return id, true
}
