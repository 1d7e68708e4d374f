package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"escrowdesk/internal/db"
	"escrowdesk/internal/models"
	"escrowdesk/internal/store"
	"escrowdesk/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByTelegramUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	SetVerified(ctx context.Context, tx store.Execer, userID string, verified bool) (int64, error)
}

type UserService struct {
	txRunner db.TxRunner
	users    UserStore
	audit    AuditStore
	now      func() time.Time
}

func NewUserService(txRunner db.TxRunner, users UserStore, audit AuditStore) *UserService {
	return &UserService{txRunner: txRunner, users: users, audit: audit, now: time.Now}
}

type CreateUserRequest struct {
	Name             string
	TelegramUsername string
	TelegramID       string
	Type             models.UserType
	Actor            Actor
}

// Create registers a counterparty. Duplicate telegram handles surface as a
// unique violation wrapped in an InternalError.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (models.User, error) {
	if err := validator.ValidateName(req.Name); err != nil {
		return models.User{}, invalid("name", err.Error())
	}
	if !req.Type.Valid() {
		return models.User{}, invalid("type", "must be buyer, seller or both")
	}
	user := models.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		CreatedAt: s.now().UTC(),
	}
	if handle := validator.NormalizeTelegramUsername(req.TelegramUsername); handle != "" {
		if err := validator.ValidateTelegramUsername(handle); err != nil {
			return models.User{}, invalid("telegram_username", err.Error())
		}
		user.TelegramUsername = &handle
	}
	if telegramID := strings.TrimSpace(req.TelegramID); telegramID != "" {
		user.TelegramID = &telegramID
	}

	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, models.AuditEntry{
			ActorID:    req.Actor.idPtr(),
			Action:     "user.create",
			EntityType: "user",
			EntityID:   user.ID,
			IPAddress:  req.Actor.IP,
			UserAgent:  req.Actor.UserAgent,
			Data:       `{"type":"` + string(user.Type) + `"}`,
			CreatedAt:  user.CreatedAt,
		})
	})
	if err != nil {
		return models.User{}, classify("create_user", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	if !isUUID(id) {
		return models.User{}, &NotFoundError{Entity: "user", Key: id}
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, &NotFoundError{Entity: "user", Key: id}
		}
		return models.User{}, classify("get_user", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	users, err := s.users.List(ctx, limit, offset)
	return users, classify("list_users", err)
}

// FindByTelegram resolves a counterparty from the handle the bot sees, with or without '@'.
func (s *UserService) FindByTelegram(ctx context.Context, username string) (models.User, error) {
	handle := validator.NormalizeTelegramUsername(username)
	if err := validator.ValidateTelegramUsername(handle); err != nil {
		return models.User{}, invalid("telegram_username", err.Error())
	}
	user, err := s.users.GetByTelegramUsername(ctx, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, &NotFoundError{Entity: "user", Key: handle}
		}
		return models.User{}, classify("find_user", err)
	}
	return user, nil
}

func (s *UserService) SetVerified(ctx context.Context, userID string, verified bool, actor Actor) (models.User, error) {
	if !isUUID(userID) {
		return models.User{}, &NotFoundError{Entity: "user", Key: userID}
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.users.SetVerified(ctx, tx, userID, verified)
		if err != nil {
			return err
		}
		if rows == 0 {
			return &NotFoundError{Entity: "user", Key: userID}
		}
		action := "user.verify"
		if !verified {
			action = "user.unverify"
		}
		return s.audit.Log(ctx, tx, models.AuditEntry{
			ActorID:    actor.idPtr(),
			Action:     action,
			EntityType: "user",
			EntityID:   userID,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
			CreatedAt:  s.now().UTC(),
		})
	})
	if err != nil {
		return models.User{}, classify("verify_user", err)
	}
	return s.Get(ctx, userID)
}

// isUUID reports whether id can be compared against a uuid column.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
