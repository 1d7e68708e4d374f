package services

import (
	"context"
	"errors"
	"time"

	"escrowdesk/internal/auth"
	"escrowdesk/internal/db"
	"escrowdesk/internal/models"
	"escrowdesk/internal/store"
	"escrowdesk/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type OperatorStore interface {
	GetByUsername(ctx context.Context, username string) (models.Operator, error)
	GetByID(ctx context.Context, operatorID string) (models.Operator, error)
	Roles(ctx context.Context, operatorID string) ([]string, error)
	Create(ctx context.Context, tx store.Execer, operator models.Operator) error
	List(ctx context.Context) ([]models.Operator, error)
	GrantRole(ctx context.Context, tx store.Execer, operatorID, role string) error
	RevokeRole(ctx context.Context, tx store.Execer, operatorID, role string) error
	HasAnyOperator(ctx context.Context) (bool, error)
}

type OperatorService struct {
	txRunner  db.TxRunner
	operators OperatorStore
	audit     AuditStore
	secret    string
	tokenTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewOperatorService(txRunner db.TxRunner, operators OperatorStore, audit AuditStore, secret string, tokenTTL time.Duration, logger *zap.Logger) *OperatorService {
	return &OperatorService{
		txRunner:  txRunner,
		operators: operators,
		audit:     audit,
		secret:    secret,
		tokenTTL:  tokenTTL,
		now:       time.Now,
		logger:    logger,
	}
}

type OperatorProfile struct {
	models.Operator
	Roles []string `json:"roles"`
}

// Login checks credentials and returns a signed bearer token.
func (s *OperatorService) Login(ctx context.Context, username, password string) (string, models.Operator, error) {
	operator, err := s.operators.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", models.Operator{}, ErrInvalidCredentials
		}
		return "", models.Operator{}, classify("login", err)
	}
	if !auth.CheckPassword(operator.PasswordHash, password) {
		return "", models.Operator{}, ErrInvalidCredentials
	}
	token, err := auth.GenerateToken(s.secret, operator.ID, s.tokenTTL)
	if err != nil {
		return "", models.Operator{}, classify("login", err)
	}
	return token, operator, nil
}

func (s *OperatorService) Profile(ctx context.Context, operatorID string) (OperatorProfile, error) {
	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OperatorProfile{}, &NotFoundError{Entity: "operator", Key: operatorID}
		}
		return OperatorProfile{}, classify("operator_profile", err)
	}
	roles, err := s.operators.Roles(ctx, operatorID)
	if err != nil {
		return OperatorProfile{}, classify("operator_profile", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return OperatorProfile{Operator: operator, Roles: roles}, nil
}

type CreateOperatorRequest struct {
	Username string
	Password string
	IsSuper  bool
	Roles    []string
	Actor    Actor
}

func (s *OperatorService) Create(ctx context.Context, req CreateOperatorRequest) (models.Operator, error) {
	if err := validator.ValidateUsername(req.Username); err != nil {
		return models.Operator{}, invalid("username", err.Error())
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		return models.Operator{}, invalid("password", "must be at least 8 characters")
	}
	for _, role := range req.Roles {
		if !store.ValidRole(role) {
			return models.Operator{}, invalid("roles", "unknown role "+role)
		}
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.Operator{}, classify("create_operator", err)
	}
	operator := models.Operator{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		IsSuper:      req.IsSuper,
		CreatedBy:    req.Actor.idPtr(),
		CreatedAt:    s.now().UTC(),
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.operators.Create(ctx, tx, operator); err != nil {
			return err
		}
		for _, role := range req.Roles {
			if err := s.operators.GrantRole(ctx, tx, operator.ID, role); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, models.AuditEntry{
			ActorID:    req.Actor.idPtr(),
			Action:     "operator.create",
			EntityType: "operator",
			EntityID:   operator.ID,
			Notes:      operator.Username,
			IPAddress:  req.Actor.IP,
			UserAgent:  req.Actor.UserAgent,
			CreatedAt:  operator.CreatedAt,
		})
	})
	if err != nil {
		return models.Operator{}, classify("create_operator", err)
	}
	return operator, nil
}

func (s *OperatorService) List(ctx context.Context) ([]models.Operator, error) {
	operators, err := s.operators.List(ctx)
	return operators, classify("list_operators", err)
}

func (s *OperatorService) GrantRole(ctx context.Context, operatorID, role string, actor Actor) error {
	return s.changeRole(ctx, operatorID, role, actor, true)
}

func (s *OperatorService) RevokeRole(ctx context.Context, operatorID, role string, actor Actor) error {
	return s.changeRole(ctx, operatorID, role, actor, false)
}

func (s *OperatorService) changeRole(ctx context.Context, operatorID, role string, actor Actor, grant bool) error {
	op, action := "grant_role", "operator.grant_role"
	if !grant {
		op, action = "revoke_role", "operator.revoke_role"
	}
	if !store.ValidRole(role) {
		return invalid("role", "unknown role "+role)
	}
	if !isUUID(operatorID) {
		return &NotFoundError{Entity: "operator", Key: operatorID}
	}
	if _, err := s.operators.GetByID(ctx, operatorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Entity: "operator", Key: operatorID}
		}
		return classify(op, err)
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if grant {
			err = s.operators.GrantRole(ctx, tx, operatorID, role)
		} else {
			err = s.operators.RevokeRole(ctx, tx, operatorID, role)
		}
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, models.AuditEntry{
			ActorID:    actor.idPtr(),
			Action:     action,
			EntityType: "operator",
			EntityID:   operatorID,
			Notes:      role,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
			CreatedAt:  s.now().UTC(),
		})
	})
	return classify(op, err)
}

// Bootstrap creates a super operator when none exists yet.
func (s *OperatorService) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	exists, err := s.operators.HasAnyOperator(ctx)
	if err != nil {
		return false, classify("bootstrap_operator", err)
	}
	if exists {
		return false, nil
	}
	if _, err := s.Create(ctx, CreateOperatorRequest{Username: username, Password: password, IsSuper: true}); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap operator created", zap.String("username", username))
	return true, nil
}
