package store

import (
	"context"
	"time"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
)

const dealColumns = `id, trade_code, listing_id, buyer_id, seller_id, usdt_amount, rate, etb_amount,
	commission_rate, commission_amount, net_amount, payment_method, escrow_wallet, status, last_action,
	created_at, updated_at, expires_at, closed_at`

type DealStore struct {
	db DB
}

func NewDealStore(db DB) *DealStore {
	return &DealStore{db: db}
}

func (s *DealStore) Create(ctx context.Context, tx Execer, deal models.Deal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deals (id, trade_code, listing_id, buyer_id, seller_id, usdt_amount, rate, etb_amount,
			commission_rate, commission_amount, net_amount, payment_method, escrow_wallet, status, last_action,
			created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16, $17)
	`, deal.ID, deal.TradeCode, deal.ListingID, deal.BuyerID, deal.SellerID, deal.USDTAmount, deal.Rate,
		deal.ETBAmount, deal.CommissionRate, deal.CommissionAmount, deal.NetAmount, deal.PaymentMethod,
		deal.EscrowWallet, deal.Status, deal.LastAction, deal.CreatedAt, deal.ExpiresAt)
	// Unique violations are left unwrapped so callers can retry with a fresh trade code.
	return err
}

func (s *DealStore) TradeCodeTaken(ctx context.Context, tx Getter, code string) (bool, error) {
	var taken bool
	err := tx.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM deals WHERE trade_code = $1)`, code)
	if err != nil {
		return false, errors.Wrap(err, "check trade code")
	}
	return taken, nil
}

func (s *DealStore) GetByTradeCode(ctx context.Context, code string) (models.Deal, error) {
	var deal models.Deal
	err := s.db.GetContext(ctx, &deal, `SELECT `+dealColumns+` FROM deals WHERE trade_code = $1`, code)
	if err != nil {
		return models.Deal{}, notFound(err, "get deal")
	}
	return deal, nil
}

// GetForUpdate locks the deal row for the rest of tx.
func (s *DealStore) GetForUpdate(ctx context.Context, tx Getter, code string) (models.Deal, error) {
	var deal models.Deal
	err := tx.GetContext(ctx, &deal, `SELECT `+dealColumns+` FROM deals WHERE trade_code = $1 FOR UPDATE`, code)
	if err != nil {
		return models.Deal{}, notFound(err, "lock deal")
	}
	return deal, nil
}

// UpdateStatus moves the deal from one status to another and records the action
// that did it. It affects zero rows when the stored status is no longer from.
func (s *DealStore) UpdateStatus(ctx context.Context, tx Execer, code string, from, to models.DealStatus, action string, at time.Time) (int64, error) {
	var closedAt *time.Time
	if to.Terminal() {
		closedAt = &at
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE deals
		SET status = $3, last_action = $4, updated_at = $5, closed_at = COALESCE($6, closed_at)
		WHERE trade_code = $1 AND status = $2
	`, code, from, to, action, at, closedAt)
	if err != nil {
		return 0, errors.Wrap(err, "update deal status")
	}
	return result.RowsAffected()
}

type DealFilter struct {
	Status    models.DealStatus
	ListingID int64
	UserID    string
}

func (s *DealStore) List(ctx context.Context, filter DealFilter, limit, offset int) ([]models.Deal, error) {
	var deals []models.Deal
	err := s.db.SelectContext(ctx, &deals, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE ($1 = '' OR status = $1)
			AND ($2 = 0 OR listing_id = $2)
			AND ($3 = '' OR buyer_id::text = $3 OR seller_id::text = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, string(filter.Status), filter.ListingID, filter.UserID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list deals")
	}
	return deals, nil
}

// ListExpirable returns trade codes of non-disputed open deals whose deadline is before now.
func (s *DealStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var codes []string
	err := s.db.SelectContext(ctx, &codes, `
		SELECT trade_code
		FROM deals
		WHERE status IN ('pending', 'escrowed', 'paid') AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list expirable deals")
	}
	return codes, nil
}

type DealStats struct {
	Total     int64 `db:"total" json:"total"`
	Open      int64 `db:"open" json:"open"`
	Disputed  int64 `db:"disputed" json:"disputed"`
	Released  int64 `db:"released" json:"released"`
	Cancelled int64 `db:"cancelled" json:"cancelled"`
	Expired   int64 `db:"expired" json:"expired"`
}

func (s *DealStore) Stats(ctx context.Context) (DealStats, error) {
	var stats DealStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(1) AS total,
			COUNT(1) FILTER (WHERE status IN ('pending', 'escrowed', 'paid')) AS open,
			COUNT(1) FILTER (WHERE status = 'disputed') AS disputed,
			COUNT(1) FILTER (WHERE status = 'released') AS released,
			COUNT(1) FILTER (WHERE status = 'cancelled') AS cancelled,
			COUNT(1) FILTER (WHERE status = 'expired') AS expired
		FROM deals
	`)
	if err != nil {
		return DealStats{}, errors.Wrap(err, "deal stats")
	}
	return stats, nil
}
