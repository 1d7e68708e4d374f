package store

import (
	"context"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
)

const userColumns = `id, name, telegram_username, telegram_id, type, verified, created_at`

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, user models.User) error {
	query := `
		INSERT INTO users (id, name, telegram_username, telegram_id, type, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query, user.ID, user.Name, user.TelegramUsername, user.TelegramID,
		user.Type, user.Verified, user.CreatedAt)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	if err != nil {
		return models.User{}, notFound(err, "get user")
	}
	return user, nil
}

func (s *UserStore) GetByTelegramUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE lower(telegram_username) = lower($1)`, username)
	if err != nil {
		return models.User{}, notFound(err, "get user by telegram username")
	}
	return user, nil
}

func (s *UserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

func (s *UserStore) SetVerified(ctx context.Context, tx Execer, userID string, verified bool) (int64, error) {
	result, err := tx.ExecContext(ctx, `UPDATE users SET verified = $2 WHERE id = $1`, userID, verified)
	if err != nil {
		return 0, errors.Wrap(err, "verify user")
	}
	return result.RowsAffected()
}
