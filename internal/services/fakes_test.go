package services

import (
	"context"
	"sync"
	"time"

	"escrowdesk/internal/models"
	"escrowdesk/internal/store"
	"escrowdesk/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memDB backs the fake stores below. It is safe for concurrent use.
type memDB struct {
	mu         sync.Mutex
	listings   map[int64]models.Listing
	deals      map[string]models.Deal
	users      map[string]models.User
	audit      []models.AuditEntry
	createErrs []error
}

func newMemDB() *memDB {
	return &memDB{
		listings: map[int64]models.Listing{},
		deals:    map[string]models.Deal{},
		users:    map[string]models.User{},
	}
}

func (m *memDB) putUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = models.User{ID: id, Name: id, Type: models.UserTypeBoth}
}

func (m *memDB) putListing(listing models.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if listing.RemainingAmount.IsZero() {
		listing.RemainingAmount = listing.Amount
	}
	if listing.Status == "" {
		listing.Status = models.ListingActive
	}
	m.listings[listing.ID] = listing
}

func (m *memDB) listing(id int64) models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id]
}

func (m *memDB) deal(code string) models.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deals[code]
}

func (m *memDB) setStatus(code string, status models.DealStatus) {
	m.setState(code, status, "")
}

// setState forces a deal into status as if action had just produced it.
func (m *memDB) setState(code string, status models.DealStatus, action Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deal := m.deals[code]
	deal.Status = status
	deal.LastAction = string(action)
	m.deals[code] = deal
}

func (m *memDB) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.audit))
	for _, entry := range m.audit {
		actions = append(actions, entry.Action)
	}
	return actions
}

type memDeals struct{ *memDB }

func (d memDeals) Create(_ context.Context, _ store.Execer, deal models.Deal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.createErrs) > 0 {
		err := d.createErrs[0]
		d.createErrs = d.createErrs[1:]
		if err != nil {
			return err
		}
	}
	d.deals[deal.TradeCode] = deal
	return nil
}

func (d memDeals) TradeCodeTaken(_ context.Context, _ store.Getter, code string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.deals[code]
	return ok, nil
}

func (d memDeals) GetByTradeCode(_ context.Context, code string) (models.Deal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	deal, ok := d.deals[code]
	if !ok {
		return models.Deal{}, store.ErrNotFound
	}
	return deal, nil
}

func (d memDeals) GetForUpdate(ctx context.Context, _ store.Getter, code string) (models.Deal, error) {
	return d.GetByTradeCode(ctx, code)
}

func (d memDeals) UpdateStatus(_ context.Context, _ store.Execer, code string, from, to models.DealStatus, action string, at time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	deal, ok := d.deals[code]
	if !ok || deal.Status != from {
		return 0, nil
	}
	deal.Status = to
	deal.LastAction = action
	deal.UpdatedAt = at
	if to.Terminal() {
		deal.ClosedAt = &at
	}
	d.deals[code] = deal
	return 1, nil
}

func (d memDeals) ListExpirable(_ context.Context, now time.Time, limit int) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var codes []string
	for code, deal := range d.deals {
		if deal.Status.Expirable() && deal.ExpiresAt.Before(now) && len(codes) < limit {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

type memListings struct{ *memDB }

func (l memListings) GetForUpdate(_ context.Context, _ store.Getter, id int64) (models.Listing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, ok := l.listings[id]
	if !ok {
		return models.Listing{}, store.ErrNotFound
	}
	return listing, nil
}

func (l memListings) AdjustRemaining(_ context.Context, _ store.Execer, id int64, delta decimal.Decimal, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing := l.listings[id]
	listing.RemainingAmount = listing.RemainingAmount.Add(delta)
	listing.UpdatedAt = at
	l.listings[id] = listing
	return nil
}

func (l memListings) CloseIfConsumed(_ context.Context, _ store.Execer, id int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing := l.listings[id]
	if !listing.RemainingAmount.IsZero() {
		return nil
	}
	for _, deal := range l.deals {
		if deal.ListingID == id && deal.Status.Open() {
			return nil
		}
	}
	listing.Status = models.ListingClosed
	listing.UpdatedAt = at
	l.listings[id] = listing
	return nil
}

type memUsers struct{ *memDB }

func (u memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return user, nil
}

type memAudit struct{ *memDB }

func (a memAudit) Log(_ context.Context, _ store.Execer, entry models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audit = append(a.audit, entry)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.DealEvent
	err    error
}

func (s *recordingSink) Append(event models.DealEvent) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.events = append(s.events, event)
	return uint64(len(s.events)), nil
}

func (s *recordingSink) snapshot() []models.DealEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DealEvent(nil), s.events...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []websocket.DealUpdate
}

func (n *recordingNotifier) BroadcastDeal(update websocket.DealUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// codeSequence hands out the given codes in order, repeating the last one.
func codeSequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}
