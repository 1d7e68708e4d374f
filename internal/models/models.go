package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserType string

const (
	UserTypeBuyer  UserType = "buyer"
	UserTypeSeller UserType = "seller"
	UserTypeBoth   UserType = "both"
)

func (t UserType) Valid() bool {
	switch t {
	case UserTypeBuyer, UserTypeSeller, UserTypeBoth:
		return true
	}
	return false
}

type User struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	TelegramUsername *string   `db:"telegram_username" json:"telegram_username,omitempty"`
	TelegramID       *string   `db:"telegram_id" json:"telegram_id,omitempty"`
	Type             UserType  `db:"type" json:"type"`
	Verified         bool      `db:"verified" json:"verified"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Operator struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsSuper      bool      `db:"is_super" json:"is_super"`
	CreatedBy    *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Side is the direction of a listing from its author's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type ListingStatus string

const (
	ListingActive ListingStatus = "active"
	ListingClosed ListingStatus = "closed"
)

func (s ListingStatus) Valid() bool {
	return s == ListingActive || s == ListingClosed
}

type Listing struct {
	ID              int64               `db:"id" json:"id"`
	UserID          *string             `db:"user_id" json:"user_id,omitempty"`
	Side            Side                `db:"side" json:"type"`
	Amount          decimal.Decimal     `db:"amount" json:"amount"`
	RemainingAmount decimal.Decimal     `db:"remaining_amount" json:"remaining_amount"`
	Rate            decimal.Decimal     `db:"rate" json:"rate"`
	PaymentMethod   string              `db:"payment_method" json:"payment_method"`
	MinAmount       decimal.NullDecimal `db:"min_amount" json:"min_amount"`
	MaxAmount       decimal.NullDecimal `db:"max_amount" json:"max_amount"`
	Contact         string              `db:"contact" json:"contact"`
	Description     string              `db:"description" json:"description"`
	Status          ListingStatus       `db:"status" json:"status"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// DealStatus is a state of the escrow deal lifecycle.
type DealStatus string

const (
	DealPending   DealStatus = "pending"
	DealEscrowed  DealStatus = "escrowed"
	DealPaid      DealStatus = "paid"
	DealReleased  DealStatus = "released"
	DealCancelled DealStatus = "cancelled"
	DealDisputed  DealStatus = "disputed"
	DealExpired   DealStatus = "expired"
)

func (s DealStatus) Valid() bool {
	switch s {
	case DealPending, DealEscrowed, DealPaid, DealReleased, DealCancelled, DealDisputed, DealExpired:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s DealStatus) Terminal() bool {
	return s == DealReleased || s == DealCancelled || s == DealExpired
}

// Expirable reports whether a deal in s is coerced to expired once past its deadline.
// Disputed deals wait for an operator ruling instead.
func (s DealStatus) Expirable() bool {
	return s == DealPending || s == DealEscrowed || s == DealPaid
}

// Open reports whether a deal in s still holds part of its listing.
func (s DealStatus) Open() bool {
	return !s.Terminal()
}

type Deal struct {
	ID               string          `db:"id" json:"id"`
	TradeCode        string          `db:"trade_code" json:"trade_code"`
	ListingID        int64           `db:"listing_id" json:"listing_id"`
	BuyerID          string          `db:"buyer_id" json:"buyer_id"`
	SellerID         string          `db:"seller_id" json:"seller_id"`
	USDTAmount       decimal.Decimal `db:"usdt_amount" json:"usdt_amount"`
	Rate             decimal.Decimal `db:"rate" json:"rate"`
	ETBAmount        decimal.Decimal `db:"etb_amount" json:"etb_amount"`
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commission_amount"`
	NetAmount        decimal.Decimal `db:"net_amount" json:"net_amount"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method"`
	EscrowWallet     string          `db:"escrow_wallet" json:"escrow_wallet"`
	Status           DealStatus      `db:"status" json:"status"`
	LastAction       string          `db:"last_action" json:"last_action"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	ExpiresAt        time.Time       `db:"expires_at" json:"expires_at"`
	ClosedAt         *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
}

// DealEvent records one committed change of a deal.
type DealEvent struct {
	Sequence     uint64          `json:"sequence"`
	TradeCode    string          `json:"trade_code"`
	Action       string          `json:"action"`
	From         DealStatus      `json:"from,omitempty"`
	To           DealStatus      `json:"to"`
	ActorID      string          `json:"actor_id,omitempty"`
	USDTAmount   decimal.Decimal `json:"usdt_amount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	EscrowWallet string          `json:"escrow_wallet"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Notes      string    `db:"notes" json:"notes"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	Data       string    `db:"data" json:"data"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
