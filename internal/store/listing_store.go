package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const listingColumns = `id, user_id, side, amount, remaining_amount, rate, payment_method,
	min_amount, max_amount, contact, description, status, created_at, updated_at`

type ListingStore struct {
	db DB
}

func NewListingStore(db DB) *ListingStore {
	return &ListingStore{db: db}
}

type NewListing struct {
	UserID        *string
	Side          models.Side
	Amount        decimal.Decimal
	Rate          decimal.Decimal
	PaymentMethod string
	MinAmount     decimal.NullDecimal
	MaxAmount     decimal.NullDecimal
	Contact       string
	Description   string
	CreatedAt     time.Time
}

// ListingFilter narrows ListPage. Zero fields match everything.
type ListingFilter struct {
	Side          models.Side
	PaymentMethod string
	Status        models.ListingStatus
}

type ListingCounts struct {
	Total int64 `db:"total" json:"total"`
	Buy   int64 `db:"buy_orders" json:"buy_orders"`
	Sell  int64 `db:"sell_orders" json:"sell_orders"`
}

func (s *ListingStore) Create(ctx context.Context, tx Getter, input NewListing) (models.Listing, error) {
	var listing models.Listing
	err := tx.GetContext(ctx, &listing, `
		INSERT INTO listings (user_id, side, amount, remaining_amount, rate, payment_method,
			min_amount, max_amount, contact, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9, 'active', $10, $10)
		RETURNING `+listingColumns,
		input.UserID, input.Side, input.Amount, input.Rate, input.PaymentMethod,
		input.MinAmount, input.MaxAmount, input.Contact, input.Description, input.CreatedAt)
	if err != nil {
		return models.Listing{}, errors.Wrap(err, "insert listing")
	}
	return listing, nil
}

func (s *ListingStore) GetByID(ctx context.Context, id int64) (models.Listing, error) {
	var listing models.Listing
	err := s.db.GetContext(ctx, &listing, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	if err != nil {
		return models.Listing{}, notFound(err, "get listing")
	}
	return listing, nil
}

// GetForUpdate locks the listing row for the rest of tx.
func (s *ListingStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.Listing, error) {
	var listing models.Listing
	err := tx.GetContext(ctx, &listing, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return models.Listing{}, notFound(err, "lock listing")
	}
	return listing, nil
}

// ListPage returns up to limit listings with id below beforeID, newest first.
// A beforeID of zero starts from the newest listing.
func (s *ListingStore) ListPage(ctx context.Context, filter ListingFilter, beforeID int64, limit int) ([]models.Listing, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if beforeID > 0 {
		add("id < $%d", beforeID)
	}
	if filter.Side != "" {
		add("side = $%d", filter.Side)
	}
	if filter.PaymentMethod != "" {
		add("payment_method = $%d", filter.PaymentMethod)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	var listings []models.Listing
	if err := s.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, errors.Wrap(err, "list listings")
	}
	return listings, nil
}

func (s *ListingStore) Counts(ctx context.Context) (ListingCounts, error) {
	var counts ListingCounts
	err := s.db.GetContext(ctx, &counts, `
		SELECT COUNT(1) AS total,
			COUNT(1) FILTER (WHERE side = 'buy') AS buy_orders,
			COUNT(1) FILTER (WHERE side = 'sell') AS sell_orders
		FROM listings
		WHERE status = 'active'
	`)
	if err != nil {
		return ListingCounts{}, errors.Wrap(err, "count listings")
	}
	return counts, nil
}

// Close marks an active listing closed and reports how many rows changed.
func (s *ListingStore) Close(ctx context.Context, tx Execer, id int64, at time.Time) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET status = 'closed', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, at)
	if err != nil {
		return 0, errors.Wrap(err, "close listing")
	}
	return result.RowsAffected()
}

// AdjustRemaining adds delta to remaining_amount. The CHECK constraint keeps it within [0, amount].
func (s *ListingStore) AdjustRemaining(ctx context.Context, tx Execer, id int64, delta decimal.Decimal, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET remaining_amount = remaining_amount + $2, updated_at = $3
		WHERE id = $1
	`, id, delta, at)
	return errors.Wrap(err, "adjust listing remaining")
}

// CloseIfConsumed closes the listing once nothing remains and no open deal holds part of it.
func (s *ListingStore) CloseIfConsumed(ctx context.Context, tx Execer, id int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listings l
		SET status = 'closed', updated_at = $2
		WHERE l.id = $1
			AND l.status = 'active'
			AND l.remaining_amount = 0
			AND NOT EXISTS (
				SELECT 1 FROM deals d
				WHERE d.listing_id = l.id
					AND d.status NOT IN ('released', 'cancelled', 'expired')
			)
	`, id, at)
	return errors.Wrap(err, "close consumed listing")
}
