package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// CursorStore keeps the last journal index each consumer has delivered.
type CursorStore struct {
	db DB
}

func NewCursorStore(db DB) *CursorStore {
	return &CursorStore{db: db}
}

// Get returns zero for a consumer that has never saved a position.
func (s *CursorStore) Get(ctx context.Context, name string) (uint64, error) {
	var position int64
	err := s.db.GetContext(ctx, &position, `SELECT position FROM journal_cursors WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "get journal cursor")
	}
	return uint64(position), nil
}

func (s *CursorStore) Save(ctx context.Context, name string, position uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_cursors (name, position, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at
	`, name, int64(position), time.Now().UTC())
	return errors.Wrap(err, "save journal cursor")
}
