package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"escrowdesk/internal/models"
	"escrowdesk/internal/services"
	"escrowdesk/internal/store"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func sampleDeal(status models.DealStatus) models.Deal {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return models.Deal{
		ID:               "deal-1",
		TradeCode:        "#AB12C",
		ListingID:        7,
		BuyerID:          "buyer-1",
		SellerID:         "seller-1",
		USDTAmount:       decimal.RequireFromString("100"),
		Rate:             decimal.RequireFromString("120.5"),
		ETBAmount:        decimal.RequireFromString("12050"),
		CommissionRate:   decimal.RequireFromString("0.015"),
		CommissionAmount: decimal.RequireFromString("1.5"),
		NetAmount:        decimal.RequireFromString("98.5"),
		EscrowWallet:     "TWalletA",
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(90 * time.Minute),
	}
}

func TestGetDealIsPublic(t *testing.T) {
	handler := newTestHandler(Deps{Deals: stubDealService{
		getFn: func(_ context.Context, code string) (models.Deal, error) {
			if code != "ab12c" {
				t.Fatalf("unexpected code %q", code)
			}
			return sampleDeal(models.DealPending), nil
		},
	}})

	rr := serve(t, handler, http.MethodGet, "/deals/ab12c", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeBody(t, rr)["data"].(map[string]any)
	if data["trade_code"] != "#AB12C" || data["status"] != "pending" {
		t.Fatalf("unexpected deal %v", data)
	}
	if data["remaining_seconds"] != float64(600) {
		t.Fatalf("expected remaining_seconds, got %v", data["remaining_seconds"])
	}
}

func TestGetDealNotFound(t *testing.T) {
	handler := newTestHandler(Deps{})
	rr := serve(t, handler, http.MethodGet, "/deals/ZZZZZ", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if decodeBody(t, rr)["success"] != false {
		t.Fatal("expected success=false")
	}
}

func TestCreateDealRequiresOperator(t *testing.T) {
	handler := newTestHandler(Deps{})
	body := `{"listing_id":7,"buyer_id":"buyer-1","seller_id":"seller-1","usdt_amount":"100"}`

	if rr := serve(t, handler, http.MethodPost, "/deals", body, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/deals", body, "stranger"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestCreateDealPassesActor(t *testing.T) {
	var got services.CreateDealRequest
	handler := newTestHandler(Deps{
		Roles: stubRoles{roles: map[string][]string{"op-1": nil}},
		Deals: stubDealService{createFn: func(_ context.Context, req services.CreateDealRequest) (models.Deal, error) {
			got = req
			return sampleDeal(models.DealPending), nil
		}},
	})

	rr := serve(t, handler, http.MethodPost, "/deals",
		`{"listing_id":7,"buyer_id":"buyer-1","seller_id":"seller-1","usdt_amount":"100.00"}`, "op-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Actor.ID != "op-1" || got.ListingID != 7 || !got.USDTAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCreateDealMapsValidationError(t *testing.T) {
	handler := newTestHandler(Deps{
		Roles: stubRoles{roles: map[string][]string{"op-1": nil}},
		Deals: stubDealService{createFn: func(context.Context, services.CreateDealRequest) (models.Deal, error) {
			return models.Deal{}, &services.ValidationError{Field: "usdt_amount", Reason: "above listing maximum 40.00"}
		}},
	})

	rr := serve(t, handler, http.MethodPost, "/deals", `{"listing_id":7,"buyer_id":"b","seller_id":"s","usdt_amount":"50"}`, "op-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if decodeBody(t, rr)["field"] != "usdt_amount" {
		t.Fatalf("expected field in body: %s", rr.Body.String())
	}
}

func TestCreateDealRejectsUnknownFields(t *testing.T) {
	handler := newTestHandler(Deps{Roles: stubRoles{roles: map[string][]string{"op-1": nil}}})
	rr := serve(t, handler, http.MethodPost, "/deals", `{"listing_id":7,"etb_amount":"1"}`, "op-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTransitionRoutesMapToActions(t *testing.T) {
	routes := map[string]string{
		"/deals/AB12C/escrow-confirmed":  "confirm_escrow",
		"/deals/AB12C/payment-confirmed": "confirm_payment",
		"/deals/AB12C/release":           "release",
		"/deals/AB12C/cancel":            "cancel",
		"/deals/AB12C/dispute":           "raise_dispute",
	}
	for path, action := range routes {
		t.Run(action, func(t *testing.T) {
			var called string
			handler := newTestHandler(Deps{Deals: stubDealService{
				applyFn: func(_ context.Context, got, code string, actor services.Actor) (models.Deal, error) {
					called = got
					if code != "AB12C" || actor.ID != "super" {
						t.Fatalf("unexpected call %s %s %+v", got, code, actor)
					}
					return sampleDeal(models.DealEscrowed), nil
				},
			}})
			rr := serve(t, handler, http.MethodPost, path, "", "super")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if called != action {
				t.Fatalf("expected %s, got %s", action, called)
			}
		})
	}
}

func TestReleaseRequiresRole(t *testing.T) {
	roles := stubRoles{roles: map[string][]string{
		"teller":  nil,
		"cashier": {store.RoleReleaseFunds},
	}}
	handler := newTestHandler(Deps{Roles: roles, Deals: stubDealService{
		applyFn: func(context.Context, string, string, services.Actor) (models.Deal, error) {
			return sampleDeal(models.DealReleased), nil
		},
	}})

	if rr := serve(t, handler, http.MethodPost, "/deals/AB12C/release", "", "teller"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if rr := serve(t, handler, http.MethodPost, "/deals/AB12C/release", "", "cashier"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestInvalidTransitionReturnsConflictWithDeal(t *testing.T) {
	handler := newTestHandler(Deps{Deals: stubDealService{
		applyFn: func(context.Context, string, string, services.Actor) (models.Deal, error) {
			return sampleDeal(models.DealExpired), &services.InvalidTransitionError{
				TradeCode: "#AB12C", Current: models.DealExpired, Action: services.ActionRelease,
			}
		},
	}})

	rr := serve(t, handler, http.MethodPost, "/deals/AB12C/release", "", "super")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["current_status"] != "expired" || body["action"] != "release" {
		t.Fatalf("unexpected body %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["status"] != "expired" {
		t.Fatalf("expected current deal in body, got %v", body["data"])
	}
}

func TestResolveDisputePassesOutcome(t *testing.T) {
	var outcome models.DealStatus
	handler := newTestHandler(Deps{
		Roles: stubRoles{roles: map[string][]string{"judge": {store.RoleResolveDisputes}}},
		Deals: stubDealService{resolveFn: func(_ context.Context, _ string, got models.DealStatus, _ services.Actor) (models.Deal, error) {
			outcome = got
			return sampleDeal(models.DealCancelled), nil
		}},
	})

	rr := serve(t, handler, http.MethodPost, "/deals/AB12C/resolve", `{"outcome":"cancelled"}`, "judge")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if outcome != models.DealCancelled {
		t.Fatalf("expected cancelled, got %s", outcome)
	}
	if rr := serve(t, handler, http.MethodPost, "/deals/AB12C/resolve", `not json`, "judge"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"internal", &services.InternalError{Op: "release", Err: errors.New("db down")}, http.StatusInternalServerError},
		{"exhausted", &services.InternalError{Op: "create_deal", Err: services.ErrTradeCodeExhausted}, http.StatusInternalServerError},
		{"unique", &services.InternalError{Op: "create_user", Err: &pq.Error{Code: "23505"}}, http.StatusConflict},
		{"not found", &services.NotFoundError{Entity: "deal", Key: "#AB12C"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(Deps{Deals: stubDealService{
				applyFn: func(context.Context, string, string, services.Actor) (models.Deal, error) {
					return models.Deal{}, tc.err
				},
			}})
			rr := serve(t, handler, http.MethodPost, "/deals/AB12C/cancel", "", "super")
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
		})
	}
}

func TestDealHistoryRequiresAuditRole(t *testing.T) {
	handler := newTestHandler(Deps{
		Roles: stubRoles{roles: map[string][]string{"teller": nil, "auditor": {store.RoleViewAudit}}},
		Deals: stubDealService{getFn: func(context.Context, string) (models.Deal, error) {
			return sampleDeal(models.DealPaid), nil
		}},
		Audit: stubAuditStore{historyFn: func(_ context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
			if entityType != "deal" || entityID != "#AB12C" {
				t.Fatalf("unexpected history lookup %s %s", entityType, entityID)
			}
			return []models.AuditEntry{{Action: "deal.create"}, {Action: "deal.confirm_escrow"}}, nil
		}},
	})

	if rr := serve(t, handler, http.MethodGet, "/deals/AB12C/history", "", "teller"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	rr := serve(t, handler, http.MethodGet, "/deals/AB12C/history", "", "auditor")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if entries := decodeBody(t, rr)["data"].([]any); len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}
