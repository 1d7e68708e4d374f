package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escrowdesk/internal/config"
	"escrowdesk/internal/db"
	"escrowdesk/internal/models"
	"escrowdesk/internal/money"
	"escrowdesk/internal/policy"
	"escrowdesk/internal/store"
	"escrowdesk/internal/validator"
	"escrowdesk/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dealEntity = "deal"

var errCodeTaken = errors.New("trade code taken")

type DealStore interface {
	Create(ctx context.Context, tx store.Execer, deal models.Deal) error
	TradeCodeTaken(ctx context.Context, tx store.Getter, code string) (bool, error)
	GetByTradeCode(ctx context.Context, code string) (models.Deal, error)
	GetForUpdate(ctx context.Context, tx store.Getter, code string) (models.Deal, error)
	UpdateStatus(ctx context.Context, tx store.Execer, code string, from, to models.DealStatus, action string, at time.Time) (int64, error)
}

// DealListingStore is the part of the listing table the engine touches while holding a deal.
type DealListingStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Listing, error)
	AdjustRemaining(ctx context.Context, tx store.Execer, id int64, delta decimal.Decimal, at time.Time) error
	CloseIfConsumed(ctx context.Context, tx store.Execer, id int64, at time.Time) error
}

type UserLookup interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, entry models.AuditEntry) error
}

// EventSink receives committed deal events.
type EventSink interface {
	Append(event models.DealEvent) (uint64, error)
}

type DealNotifier interface {
	BroadcastDeal(update websocket.DealUpdate)
}

// Actor identifies who asked for a change. A zero Actor is the system itself.
type Actor struct {
	ID        string
	IP        string
	UserAgent string
}

func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

type DealEngineDeps struct {
	TxRunner db.TxRunner
	Listings DealListingStore
	Deals    DealStore
	Users    UserLookup
	Audit    AuditStore
	Events   EventSink
	Notifier DealNotifier
	Wallets  *WalletPool
	Logger   *zap.Logger
	// Now and NewCode default to time.Now and NewTradeCode.
	Now     func() time.Time
	NewCode func() (string, error)
}

// DealEngine owns every deal status change. Each change for one trade code runs
// under an in-process lock and a row lock, inside a single transaction.
type DealEngine struct {
	txRunner db.TxRunner
	listings DealListingStore
	deals    DealStore
	users    UserLookup
	audit    AuditStore
	events   EventSink
	notifier DealNotifier
	wallets  *WalletPool
	locks    *KeyedLocker
	cfg      config.DealConfig
	now      func() time.Time
	newCode  func() (string, error)
	logger   *zap.Logger
}

func NewDealEngine(cfg config.DealConfig, deps DealEngineDeps) *DealEngine {
	engine := &DealEngine{
		txRunner: deps.TxRunner,
		listings: deps.Listings,
		deals:    deps.Deals,
		users:    deps.Users,
		audit:    deps.Audit,
		events:   deps.Events,
		notifier: deps.Notifier,
		wallets:  deps.Wallets,
		locks:    NewKeyedLocker(),
		cfg:      cfg,
		now:      deps.Now,
		newCode:  deps.NewCode,
		logger:   deps.Logger,
	}
	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.newCode == nil {
		engine.newCode = NewTradeCode
	}
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	if engine.cfg.TradeCodeAttempts <= 0 {
		engine.cfg.TradeCodeAttempts = 5
	}
	return engine
}

type CreateDealRequest struct {
	ListingID  int64
	BuyerID    string
	SellerID   string
	USDTAmount decimal.Decimal
	Actor      Actor
}

// CreateDeal opens a deal against an active listing and reserves its amount.
func (e *DealEngine) CreateDeal(ctx context.Context, req CreateDealRequest) (models.Deal, error) {
	if err := money.CheckPositive(req.USDTAmount, money.AmountPlaces); err != nil {
		return models.Deal{}, invalid("usdt_amount", err.Error())
	}
	if req.ListingID <= 0 {
		return models.Deal{}, invalid("listing_id", "is required")
	}
	if req.BuyerID == "" {
		return models.Deal{}, invalid("buyer_id", "is required")
	}
	if req.SellerID == "" {
		return models.Deal{}, invalid("seller_id", "is required")
	}
	if req.BuyerID == req.SellerID {
		return models.Deal{}, invalid("seller_id", "must differ from buyer_id")
	}
	parties := []struct{ field, id string }{{"buyer_id", req.BuyerID}, {"seller_id", req.SellerID}}
	for _, party := range parties {
		if !isUUID(party.id) {
			return models.Deal{}, invalid(party.field, "unknown user")
		}
		if _, err := e.users.GetByID(ctx, party.id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.Deal{}, invalid(party.field, "unknown user")
			}
			return models.Deal{}, classify("create_deal", err)
		}
	}

	for attempt := 1; attempt <= e.cfg.TradeCodeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return models.Deal{}, classify("create_deal", err)
		}
		deal, event, err := e.insertDeal(ctx, req, code)
		if errors.Is(err, errCodeTaken) {
			e.logger.Warn("trade code collision", zap.String("trade_code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return models.Deal{}, classify("create_deal", err)
		}
		e.publish(deal, []models.DealEvent{event})
		return deal, nil
	}
	return models.Deal{}, &InternalError{Op: "create_deal", Err: ErrTradeCodeExhausted}
}

func (e *DealEngine) insertDeal(ctx context.Context, req CreateDealRequest, code string) (models.Deal, models.DealEvent, error) {
	var deal models.Deal
	err := e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		listing, err := e.listings.GetForUpdate(ctx, tx, req.ListingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &NotFoundError{Entity: "listing", Key: fmt.Sprint(req.ListingID)}
			}
			return err
		}
		if err := checkDealTerms(listing, req); err != nil {
			return err
		}
		taken, err := e.deals.TradeCodeTaken(ctx, tx, code)
		if err != nil {
			return err
		}
		if taken {
			return errCodeTaken
		}

		now := e.now().UTC()
		quote := policy.NewQuote(req.USDTAmount, listing.Rate, e.cfg.CommissionRate)
		deal = models.Deal{
			ID:               uuid.NewString(),
			TradeCode:        code,
			ListingID:        listing.ID,
			BuyerID:          req.BuyerID,
			SellerID:         req.SellerID,
			USDTAmount:       req.USDTAmount,
			Rate:             listing.Rate,
			ETBAmount:        quote.ETBAmount,
			CommissionRate:   quote.CommissionRate,
			CommissionAmount: quote.CommissionAmount,
			NetAmount:        quote.NetAmount,
			PaymentMethod:    listing.PaymentMethod,
			EscrowWallet:     e.wallets.Next(),
			Status:           models.DealPending,
			LastAction:       string(ActionCreate),
			CreatedAt:        now,
			UpdatedAt:        now,
			ExpiresAt:        policy.Expiry(now, e.cfg.Timeout),
		}
		if err := e.deals.Create(ctx, tx, deal); err != nil {
			if db.IsUniqueViolation(err) {
				return errCodeTaken
			}
			return err
		}
		if err := e.listings.AdjustRemaining(ctx, tx, listing.ID, req.USDTAmount.Neg(), now); err != nil {
			return err
		}
		return e.audit.Log(ctx, tx, dealAudit(deal, req.Actor, ActionCreate, "", deal.Status, now, "deal opened"))
	})
	if err != nil {
		return models.Deal{}, models.DealEvent{}, err
	}
	return deal, dealEvent(deal, ActionCreate, "", req.Actor), nil
}

func checkDealTerms(listing models.Listing, req CreateDealRequest) error {
	if listing.Status != models.ListingActive {
		return invalid("listing_id", "listing is closed")
	}
	if listing.UserID != nil {
		owner := *listing.UserID
		if listing.Side == models.SideSell && req.SellerID != owner {
			return invalid("seller_id", "must be the owner of a sell listing")
		}
		if listing.Side == models.SideBuy && req.BuyerID != owner {
			return invalid("buyer_id", "must be the owner of a buy listing")
		}
	}
	if listing.MinAmount.Valid && req.USDTAmount.LessThan(listing.MinAmount.Decimal) {
		return invalid("usdt_amount", "below listing minimum "+money.Format(listing.MinAmount.Decimal))
	}
	if listing.MaxAmount.Valid && req.USDTAmount.GreaterThan(listing.MaxAmount.Decimal) {
		return invalid("usdt_amount", "above listing maximum "+money.Format(listing.MaxAmount.Decimal))
	}
	if req.USDTAmount.GreaterThan(listing.RemainingAmount) {
		return invalid("usdt_amount", "exceeds listing remaining amount "+money.Format(listing.RemainingAmount))
	}
	return nil
}

// Get returns the deal, coercing it to expired first when its deadline has passed.
func (e *DealEngine) Get(ctx context.Context, code string) (models.Deal, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return models.Deal{}, err
	}
	deal, err := e.deals.GetByTradeCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Deal{}, &NotFoundError{Entity: dealEntity, Key: code}
		}
		return models.Deal{}, classify("get_deal", err)
	}
	if deal.Status.Expirable() && policy.Expired(deal.ExpiresAt, e.now()) {
		return e.Expire(ctx, code)
	}
	return deal, nil
}

func (e *DealEngine) ConfirmEscrow(ctx context.Context, code string, actor Actor) (models.Deal, error) {
	return e.transition(ctx, code, ActionConfirmEscrow, "", actor)
}

func (e *DealEngine) ConfirmPayment(ctx context.Context, code string, actor Actor) (models.Deal, error) {
	return e.transition(ctx, code, ActionConfirmPayment, "", actor)
}

// Release pays out the net amount fixed when the deal was opened.
func (e *DealEngine) Release(ctx context.Context, code string, actor Actor) (models.Deal, error) {
	return e.transition(ctx, code, ActionRelease, "", actor)
}

func (e *DealEngine) Cancel(ctx context.Context, code string, actor Actor) (models.Deal, error) {
	return e.transition(ctx, code, ActionCancel, "", actor)
}

func (e *DealEngine) RaiseDispute(ctx context.Context, code string, actor Actor) (models.Deal, error) {
	return e.transition(ctx, code, ActionRaiseDispute, "", actor)
}

// ResolveDispute settles a disputed deal as released or cancelled.
func (e *DealEngine) ResolveDispute(ctx context.Context, code string, outcome models.DealStatus, actor Actor) (models.Deal, error) {
	if _, ok := targetStatus(ActionResolveDispute, outcome); !ok {
		return models.Deal{}, invalid("outcome", "must be released or cancelled")
	}
	return e.transition(ctx, code, ActionResolveDispute, outcome, actor)
}

// Expire moves an overdue deal to expired. Deals that are not overdue, disputed
// or already terminal are returned unchanged.
func (e *DealEngine) Expire(ctx context.Context, code string) (models.Deal, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return models.Deal{}, err
	}
	return e.locked(ctx, code, string(ActionExpire), func(tx *sqlx.Tx, now time.Time, out *outcome) error {
		if !out.deal.Status.Expirable() || !policy.Expired(out.deal.ExpiresAt, now) {
			return nil
		}
		return e.step(ctx, tx, out, ActionExpire, models.DealExpired, now, Actor{}, "deadline passed")
	})
}

// transition applies action to the deal. The returned deal reflects the stored
// state even when err is an *InvalidTransitionError.
func (e *DealEngine) transition(ctx context.Context, code string, action Action, ruling models.DealStatus, actor Actor) (models.Deal, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return models.Deal{}, err
	}
	target, _ := targetStatus(action, ruling)
	return e.locked(ctx, code, string(action), func(tx *sqlx.Tx, now time.Time, out *outcome) error {
		if out.deal.Status.Expirable() && policy.Expired(out.deal.ExpiresAt, now) {
			if err := e.step(ctx, tx, out, ActionExpire, models.DealExpired, now, Actor{}, "deadline passed before "+string(action)); err != nil {
				return err
			}
		}
		current := out.deal.Status
		// A retry only matches when this same action produced the current status.
		if current == target && out.deal.LastAction == string(action) {
			return nil
		}
		if !allowed(action, current, target) {
			// The expiry above, if any, still commits.
			out.reject = &InvalidTransitionError{TradeCode: code, Current: current, Action: action}
			return nil
		}
		return e.step(ctx, tx, out, action, target, now, actor, "")
	})
}

type outcome struct {
	deal   models.Deal
	events []models.DealEvent
	reject error
}

func (e *DealEngine) locked(ctx context.Context, code, op string, fn func(tx *sqlx.Tx, now time.Time, out *outcome) error) (models.Deal, error) {
	unlock := e.locks.Lock(code)
	defer unlock()

	var out outcome
	err := e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		out = outcome{}
		deal, err := e.deals.GetForUpdate(ctx, tx, code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &NotFoundError{Entity: dealEntity, Key: code}
			}
			return err
		}
		out.deal = deal
		return fn(tx, e.now().UTC(), &out)
	})
	if err != nil {
		return models.Deal{}, classify(op, err)
	}
	if len(out.events) > 0 {
		e.publish(out.deal, out.events)
	}
	if out.reject != nil {
		return out.deal, out.reject
	}
	return out.deal, nil
}

// step writes one status change with its listing bookkeeping and audit row.
func (e *DealEngine) step(ctx context.Context, tx *sqlx.Tx, out *outcome, action Action, to models.DealStatus, now time.Time, actor Actor, notes string) error {
	deal := out.deal
	from := deal.Status
	rows, err := e.deals.UpdateStatus(ctx, tx, deal.TradeCode, from, to, string(action), now)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("deal %s changed outside its lock", deal.TradeCode)
	}

	switch to {
	case models.DealCancelled, models.DealExpired:
		if err := e.listings.AdjustRemaining(ctx, tx, deal.ListingID, deal.USDTAmount, now); err != nil {
			return err
		}
	case models.DealReleased:
		if err := e.listings.CloseIfConsumed(ctx, tx, deal.ListingID, now); err != nil {
			return err
		}
	}

	deal.Status = to
	deal.LastAction = string(action)
	deal.UpdatedAt = now
	if to.Terminal() {
		closedAt := now
		deal.ClosedAt = &closedAt
	}
	if err := e.audit.Log(ctx, tx, dealAudit(deal, actor, action, from, to, now, notes)); err != nil {
		return err
	}
	out.deal = deal
	out.events = append(out.events, dealEvent(deal, action, from, actor))
	return nil
}

// publish runs after commit. Failures are logged and never undo the change.
func (e *DealEngine) publish(deal models.Deal, events []models.DealEvent) {
	if e.events != nil {
		for _, event := range events {
			if _, err := e.events.Append(event); err != nil {
				e.logger.Error("journal append failed",
					zap.String("trade_code", event.TradeCode),
					zap.String("action", event.Action),
					zap.Error(err))
			}
		}
	}
	if e.notifier != nil {
		e.notifier.BroadcastDeal(websocket.DealUpdate{
			TradeCode:        deal.TradeCode,
			Status:           string(deal.Status),
			RemainingSeconds: e.RemainingSeconds(deal),
			UpdatedAt:        deal.UpdatedAt,
		})
	}
	for _, event := range events {
		e.logger.Info("deal transition",
			zap.String("trade_code", event.TradeCode),
			zap.String("action", event.Action),
			zap.String("from", string(event.From)),
			zap.String("to", string(event.To)))
	}
}

// RemainingSeconds is display-only time left on an open deal.
func (e *DealEngine) RemainingSeconds(deal models.Deal) int64 {
	if !deal.Status.Expirable() {
		return 0
	}
	return int64(policy.Remaining(deal.ExpiresAt, e.now()) / time.Second)
}

func normalizeCode(code string) (string, error) {
	code = validator.NormalizeTradeCode(code)
	if err := validator.ValidateTradeCode(code); err != nil {
		return "", invalid("trade_code", err.Error())
	}
	return code, nil
}

func dealEvent(deal models.Deal, action Action, from models.DealStatus, actor Actor) models.DealEvent {
	return models.DealEvent{
		TradeCode:    deal.TradeCode,
		Action:       string(action),
		From:         from,
		To:           deal.Status,
		ActorID:      actor.ID,
		USDTAmount:   deal.USDTAmount,
		NetAmount:    deal.NetAmount,
		EscrowWallet: deal.EscrowWallet,
		OccurredAt:   deal.UpdatedAt,
	}
}

func dealAudit(deal models.Deal, actor Actor, action Action, from, to models.DealStatus, at time.Time, notes string) models.AuditEntry {
	data, _ := json.Marshal(map[string]string{
		"from":              string(from),
		"to":                string(to),
		"usdt_amount":       money.Format(deal.USDTAmount),
		"etb_amount":        money.Format(deal.ETBAmount),
		"commission_amount": money.Format(deal.CommissionAmount),
		"net_amount":        money.Format(deal.NetAmount),
		"escrow_wallet":     deal.EscrowWallet,
	})
	return models.AuditEntry{
		ActorID:    actor.idPtr(),
		Action:     "deal." + string(action),
		EntityType: dealEntity,
		EntityID:   deal.TradeCode,
		Notes:      notes,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
		Data:       string(data),
		CreatedAt:  at,
	}
}
