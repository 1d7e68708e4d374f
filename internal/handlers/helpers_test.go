package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"escrowdesk/internal/auth"
	"escrowdesk/internal/config"
	"escrowdesk/internal/models"
	"escrowdesk/internal/services"
	"escrowdesk/internal/store"
	"escrowdesk/internal/websocket"
)

const testSecret = "secret"

type stubDealService struct {
	createFn  func(ctx context.Context, req services.CreateDealRequest) (models.Deal, error)
	getFn     func(ctx context.Context, code string) (models.Deal, error)
	applyFn   func(ctx context.Context, action, code string, actor services.Actor) (models.Deal, error)
	resolveFn func(ctx context.Context, code string, outcome models.DealStatus, actor services.Actor) (models.Deal, error)
}

func (s stubDealService) CreateDeal(ctx context.Context, req services.CreateDealRequest) (models.Deal, error) {
	if s.createFn == nil {
		return models.Deal{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubDealService) Get(ctx context.Context, code string) (models.Deal, error) {
	if s.getFn == nil {
		return models.Deal{}, &services.NotFoundError{Entity: "deal", Key: code}
	}
	return s.getFn(ctx, code)
}

func (s stubDealService) apply(ctx context.Context, action, code string, actor services.Actor) (models.Deal, error) {
	if s.applyFn == nil {
		return models.Deal{}, nil
	}
	return s.applyFn(ctx, action, code, actor)
}

func (s stubDealService) ConfirmEscrow(ctx context.Context, code string, actor services.Actor) (models.Deal, error) {
	return s.apply(ctx, "confirm_escrow", code, actor)
}

func (s stubDealService) ConfirmPayment(ctx context.Context, code string, actor services.Actor) (models.Deal, error) {
	return s.apply(ctx, "confirm_payment", code, actor)
}

func (s stubDealService) Release(ctx context.Context, code string, actor services.Actor) (models.Deal, error) {
	return s.apply(ctx, "release", code, actor)
}

func (s stubDealService) Cancel(ctx context.Context, code string, actor services.Actor) (models.Deal, error) {
	return s.apply(ctx, "cancel", code, actor)
}

func (s stubDealService) RaiseDispute(ctx context.Context, code string, actor services.Actor) (models.Deal, error) {
	return s.apply(ctx, "raise_dispute", code, actor)
}

func (s stubDealService) ResolveDispute(ctx context.Context, code string, outcome models.DealStatus, actor services.Actor) (models.Deal, error) {
	if s.resolveFn == nil {
		return models.Deal{}, nil
	}
	return s.resolveFn(ctx, code, outcome, actor)
}

func (s stubDealService) RemainingSeconds(deal models.Deal) int64 {
	if deal.Status.Expirable() {
		return 600
	}
	return 0
}

type stubListingService struct {
	createFn func(ctx context.Context, req services.CreateListingRequest) (models.Listing, error)
	getFn    func(ctx context.Context, id int64) (models.Listing, error)
	listFn   func(ctx context.Context, filter store.ListingFilter) ([]models.Listing, error)
	countsFn func(ctx context.Context) (store.ListingCounts, error)
	closeFn  func(ctx context.Context, id int64, actor services.Actor) (models.Listing, error)
}

func (s stubListingService) Create(ctx context.Context, req services.CreateListingRequest) (models.Listing, error) {
	if s.createFn == nil {
		return models.Listing{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubListingService) Get(ctx context.Context, id int64) (models.Listing, error) {
	if s.getFn == nil {
		return models.Listing{}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubListingService) List(ctx context.Context, filter store.ListingFilter) iter.Seq2[models.Listing, error] {
	return func(yield func(models.Listing, error) bool) {
		if s.listFn == nil {
			return
		}
		listings, err := s.listFn(ctx, filter)
		if err != nil {
			yield(models.Listing{}, err)
			return
		}
		for _, listing := range listings {
			if !yield(listing, nil) {
				return
			}
		}
	}
}

func (s stubListingService) Counts(ctx context.Context) (store.ListingCounts, error) {
	if s.countsFn == nil {
		return store.ListingCounts{}, nil
	}
	return s.countsFn(ctx)
}

func (s stubListingService) Close(ctx context.Context, id int64, actor services.Actor) (models.Listing, error) {
	if s.closeFn == nil {
		return models.Listing{}, nil
	}
	return s.closeFn(ctx, id, actor)
}

type stubUserService struct {
	createFn   func(ctx context.Context, req services.CreateUserRequest) (models.User, error)
	getFn      func(ctx context.Context, id string) (models.User, error)
	findFn     func(ctx context.Context, username string) (models.User, error)
	listFn     func(ctx context.Context, limit, offset int) ([]models.User, error)
	verifiedFn func(ctx context.Context, userID string, verified bool, actor services.Actor) (models.User, error)
}

func (s stubUserService) Create(ctx context.Context, req services.CreateUserRequest) (models.User, error) {
	if s.createFn == nil {
		return models.User{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubUserService) Get(ctx context.Context, id string) (models.User, error) {
	if s.getFn == nil {
		return models.User{}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubUserService) FindByTelegram(ctx context.Context, username string) (models.User, error) {
	if s.findFn == nil {
		return models.User{}, nil
	}
	return s.findFn(ctx, username)
}

func (s stubUserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func (s stubUserService) SetVerified(ctx context.Context, userID string, verified bool, actor services.Actor) (models.User, error) {
	if s.verifiedFn == nil {
		return models.User{}, nil
	}
	return s.verifiedFn(ctx, userID, verified, actor)
}

type stubOperatorService struct {
	loginFn   func(ctx context.Context, username, password string) (string, models.Operator, error)
	profileFn func(ctx context.Context, operatorID string) (services.OperatorProfile, error)
	createFn  func(ctx context.Context, req services.CreateOperatorRequest) (models.Operator, error)
	listFn    func(ctx context.Context) ([]models.Operator, error)
	grantFn   func(ctx context.Context, operatorID, role string, actor services.Actor) error
	revokeFn  func(ctx context.Context, operatorID, role string, actor services.Actor) error
}

func (s stubOperatorService) Login(ctx context.Context, username, password string) (string, models.Operator, error) {
	if s.loginFn == nil {
		return "", models.Operator{}, services.ErrInvalidCredentials
	}
	return s.loginFn(ctx, username, password)
}

func (s stubOperatorService) Profile(ctx context.Context, operatorID string) (services.OperatorProfile, error) {
	if s.profileFn == nil {
		return services.OperatorProfile{}, nil
	}
	return s.profileFn(ctx, operatorID)
}

func (s stubOperatorService) Create(ctx context.Context, req services.CreateOperatorRequest) (models.Operator, error) {
	if s.createFn == nil {
		return models.Operator{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubOperatorService) List(ctx context.Context) ([]models.Operator, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

func (s stubOperatorService) GrantRole(ctx context.Context, operatorID, role string, actor services.Actor) error {
	if s.grantFn == nil {
		return nil
	}
	return s.grantFn(ctx, operatorID, role, actor)
}

func (s stubOperatorService) RevokeRole(ctx context.Context, operatorID, role string, actor services.Actor) error {
	if s.revokeFn == nil {
		return nil
	}
	return s.revokeFn(ctx, operatorID, role, actor)
}

// stubRoles treats "super" as a super operator and grants other operators the listed roles.
type stubRoles struct {
	roles map[string][]string
}

func (s stubRoles) IsOperator(_ context.Context, operatorID string) (bool, bool, error) {
	if operatorID == "super" {
		return true, true, nil
	}
	_, ok := s.roles[operatorID]
	return ok, false, nil
}

func (s stubRoles) HasRole(_ context.Context, operatorID, role string) (bool, error) {
	for _, granted := range s.roles[operatorID] {
		if granted == role {
			return true, nil
		}
	}
	return false, nil
}

type stubDealLister struct {
	listFn func(ctx context.Context, filter store.DealFilter, limit, offset int) ([]models.Deal, error)
}

func (s stubDealLister) List(ctx context.Context, filter store.DealFilter, limit, offset int) ([]models.Deal, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter, limit, offset)
}

func (s stubDealLister) Stats(context.Context) (store.DealStats, error) {
	return store.DealStats{}, nil
}

type stubAuditStore struct {
	listFn    func(ctx context.Context, filter store.AuditFilter, limit, offset int) ([]models.AuditEntry, error)
	historyFn func(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
}

func (s stubAuditStore) List(ctx context.Context, filter store.AuditFilter, limit, offset int) ([]models.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter, limit, offset)
}

func (s stubAuditStore) History(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, entityType, entityID)
}

type stubEventReader struct {
	events []models.DealEvent
}

func (s stubEventReader) After(index uint64, limit int) ([]models.DealEvent, error) {
	var out []models.DealEvent
	for _, event := range s.events {
		if event.Sequence > index && len(out) < limit {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s stubEventReader) CurrentIndex() uint64 {
	return uint64(len(s.events))
}

// newTestHandler fills any missing dependency with an empty stub.
func newTestHandler(deps Deps) http.Handler {
	cfg := config.Config{
		AppEnv:         "test",
		JWTSecret:      testSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		RateLimit:      config.RateLimitConfig{RPS: 100, Burst: 100},
	}
	if deps.Deals == nil {
		deps.Deals = stubDealService{}
	}
	if deps.Listings == nil {
		deps.Listings = stubListingService{}
	}
	if deps.Users == nil {
		deps.Users = stubUserService{}
	}
	if deps.Operators == nil {
		deps.Operators = stubOperatorService{}
	}
	if deps.Roles == nil {
		deps.Roles = stubRoles{}
	}
	if deps.DealList == nil {
		deps.DealList = stubDealLister{}
	}
	if deps.Audit == nil {
		deps.Audit = stubAuditStore{}
	}
	if deps.Events == nil {
		deps.Events = stubEventReader{}
	}
	if deps.Hub == nil {
		deps.Hub = websocket.NewHub()
	}
	return New(cfg, deps).Routes()
}

// serve sends a request through the router, authenticated as operatorID when it is not empty.
func serve(t *testing.T, handler http.Handler, method, path, body, operatorID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if operatorID != "" {
		token, err := auth.GenerateToken(testSecret, operatorID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return body
}
