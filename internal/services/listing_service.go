package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"escrowdesk/internal/db"
	"escrowdesk/internal/models"
	"escrowdesk/internal/money"
	"escrowdesk/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	listingEntity       = "listing"
	listingPageSize     = 50
	maxContactLength    = 200
	maxDescriptionRunes = 1000
)

type ListingStore interface {
	Create(ctx context.Context, tx store.Getter, input store.NewListing) (models.Listing, error)
	GetByID(ctx context.Context, id int64) (models.Listing, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Listing, error)
	ListPage(ctx context.Context, filter store.ListingFilter, beforeID int64, limit int) ([]models.Listing, error)
	Counts(ctx context.Context) (store.ListingCounts, error)
	Close(ctx context.Context, tx store.Execer, id int64, at time.Time) (int64, error)
}

type ListingService struct {
	txRunner db.TxRunner
	listings ListingStore
	users    UserLookup
	audit    AuditStore
	methods  *PaymentMethods
	now      func() time.Time
	logger   *zap.Logger
}

func NewListingService(txRunner db.TxRunner, listings ListingStore, users UserLookup, audit AuditStore, methods *PaymentMethods, logger *zap.Logger) *ListingService {
	return &ListingService{
		txRunner: txRunner,
		listings: listings,
		users:    users,
		audit:    audit,
		methods:  methods,
		now:      time.Now,
		logger:   logger,
	}
}

type CreateListingRequest struct {
	UserID        *string
	Side          models.Side
	Amount        decimal.Decimal
	Rate          decimal.Decimal
	PaymentMethod string
	MinAmount     decimal.NullDecimal
	MaxAmount     decimal.NullDecimal
	Contact       string
	Description   string
	Actor         Actor
}

func (s *ListingService) Create(ctx context.Context, req CreateListingRequest) (models.Listing, error) {
	input, err := s.validate(ctx, req)
	if err != nil {
		return models.Listing{}, err
	}
	var listing models.Listing
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.listings.Create(ctx, tx, input)
		if err != nil {
			return err
		}
		listing = created
		return s.audit.Log(ctx, tx, listingAudit(created, req.Actor, "listing.create", input.CreatedAt))
	})
	if err != nil {
		return models.Listing{}, classify("create_listing", err)
	}
	s.logger.Info("listing created", zap.Int64("listing_id", listing.ID), zap.String("side", string(listing.Side)))
	return listing, nil
}

func (s *ListingService) validate(ctx context.Context, req CreateListingRequest) (store.NewListing, error) {
	if !req.Side.Valid() {
		return store.NewListing{}, invalid("type", "must be buy or sell")
	}
	if err := money.CheckPositive(req.Amount, money.AmountPlaces); err != nil {
		return store.NewListing{}, invalid("amount", err.Error())
	}
	if err := money.CheckPositive(req.Rate, money.RatePlaces); err != nil {
		return store.NewListing{}, invalid("rate", err.Error())
	}
	method, ok := s.methods.Canonical(req.PaymentMethod)
	if !ok {
		return store.NewListing{}, invalid("payment_method", "not a recognized payment method")
	}
	bounds := []struct {
		field string
		value decimal.NullDecimal
	}{{"min_amount", req.MinAmount}, {"max_amount", req.MaxAmount}}
	for _, bound := range bounds {
		if !bound.value.Valid {
			continue
		}
		if err := money.CheckPositive(bound.value.Decimal, money.AmountPlaces); err != nil {
			return store.NewListing{}, invalid(bound.field, err.Error())
		}
		if bound.value.Decimal.GreaterThan(req.Amount) {
			return store.NewListing{}, invalid(bound.field, "must not exceed amount")
		}
	}
	if req.MinAmount.Valid && req.MaxAmount.Valid && req.MinAmount.Decimal.GreaterThan(req.MaxAmount.Decimal) {
		return store.NewListing{}, invalid("min_amount", "must not exceed max_amount")
	}
	contact := strings.TrimSpace(req.Contact)
	if contact == "" {
		return store.NewListing{}, invalid("contact", "is required")
	}
	if len(contact) > maxContactLength {
		return store.NewListing{}, invalid("contact", "is too long")
	}
	description := strings.TrimSpace(req.Description)
	if len([]rune(description)) > maxDescriptionRunes {
		return store.NewListing{}, invalid("description", "is too long")
	}
	if req.UserID != nil {
		if !isUUID(*req.UserID) {
			return store.NewListing{}, invalid("user_id", "unknown user")
		}
		if _, err := s.users.GetByID(ctx, *req.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.NewListing{}, invalid("user_id", "unknown user")
			}
			return store.NewListing{}, classify("create_listing", err)
		}
	}
	return store.NewListing{
		UserID:        req.UserID,
		Side:          req.Side,
		Amount:        req.Amount,
		Rate:          req.Rate,
		PaymentMethod: method,
		MinAmount:     req.MinAmount,
		MaxAmount:     req.MaxAmount,
		Contact:       contact,
		Description:   description,
		CreatedAt:     s.now().UTC(),
	}, nil
}

func (s *ListingService) Get(ctx context.Context, id int64) (models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Listing{}, &NotFoundError{Entity: listingEntity, Key: fmt.Sprint(id)}
		}
		return models.Listing{}, classify("get_listing", err)
	}
	return listing, nil
}

// List yields listings newest first, fetching pages on demand. Each call to the
// returned sequence starts over from the newest listing.
func (s *ListingService) List(ctx context.Context, filter store.ListingFilter) iter.Seq2[models.Listing, error] {
	return func(yield func(models.Listing, error) bool) {
		if filter.Side != "" && !filter.Side.Valid() {
			yield(models.Listing{}, invalid("type", "must be buy or sell"))
			return
		}
		if filter.Status != "" && !filter.Status.Valid() {
			yield(models.Listing{}, invalid("status", "must be active or closed"))
			return
		}
		if filter.PaymentMethod != "" {
			method, ok := s.methods.Canonical(filter.PaymentMethod)
			if !ok {
				yield(models.Listing{}, invalid("payment_method", "not a recognized payment method"))
				return
			}
			filter.PaymentMethod = method
		}
		var cursor int64
		for {
			page, err := s.listings.ListPage(ctx, filter, cursor, listingPageSize)
			if err != nil {
				yield(models.Listing{}, classify("list_listings", err))
				return
			}
			for _, listing := range page {
				if !yield(listing, nil) {
					return
				}
			}
			if len(page) < listingPageSize {
				return
			}
			cursor = page[len(page)-1].ID
		}
	}
}

func (s *ListingService) Counts(ctx context.Context) (store.ListingCounts, error) {
	counts, err := s.listings.Counts(ctx)
	return counts, classify("count_listings", err)
}

// Close withdraws a listing. Closing a closed listing is a no-op.
func (s *ListingService) Close(ctx context.Context, id int64, actor Actor) (models.Listing, error) {
	var listing models.Listing
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.listings.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &NotFoundError{Entity: listingEntity, Key: fmt.Sprint(id)}
			}
			return err
		}
		listing = current
		if current.Status == models.ListingClosed {
			return nil
		}
		now := s.now().UTC()
		if _, err := s.listings.Close(ctx, tx, id, now); err != nil {
			return err
		}
		listing.Status = models.ListingClosed
		listing.UpdatedAt = now
		return s.audit.Log(ctx, tx, listingAudit(listing, actor, "listing.close", now))
	})
	if err != nil {
		return models.Listing{}, classify("close_listing", err)
	}
	return listing, nil
}

func listingAudit(listing models.Listing, actor Actor, action string, at time.Time) models.AuditEntry {
	data, _ := json.Marshal(map[string]string{
		"side":             string(listing.Side),
		"amount":           money.Format(listing.Amount),
		"remaining_amount": money.Format(listing.RemainingAmount),
		"rate":             money.FormatRate(listing.Rate),
		"payment_method":   listing.PaymentMethod,
		"status":           string(listing.Status),
	})
	return models.AuditEntry{
		ActorID:    actor.idPtr(),
		Action:     action,
		EntityType: listingEntity,
		EntityID:   fmt.Sprint(listing.ID),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
		Data:       string(data),
		CreatedAt:  at,
	}
}
