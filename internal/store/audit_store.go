package store

import (
	"context"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Action     string
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, entry models.AuditEntry) error {
	data := entry.Data
	if data == "" {
		data = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deal_logs (id, actor_id, action, entity_type, entity_id, notes, ip_address, user_agent, data, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, entry.Notes,
		entry.IPAddress, entry.UserAgent, data, entry.CreatedAt)
	return errors.Wrap(err, "write audit entry")
}

func (s *AuditStore) List(ctx context.Context, filter AuditFilter, limit, offset int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, actor_id, action, entity_type, entity_id, notes, ip_address, user_agent, data, created_at
		FROM deal_logs
		WHERE ($1 = '' OR entity_type = $1)
			AND ($2 = '' OR entity_id = $2)
			AND ($3 = '' OR action = $3)
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5
	`, filter.EntityType, filter.EntityID, filter.Action, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list audit entries")
	}
	return entries, nil
}

// History returns every entry for one entity, oldest first.
func (s *AuditStore) History(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, actor_id, action, entity_type, entity_id, notes, ip_address, user_agent, data, created_at
		FROM deal_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`, entityType, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "audit history")
	}
	return entries, nil
}
