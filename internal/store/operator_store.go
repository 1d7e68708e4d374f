package store

import (
	"context"
	"database/sql"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
)

const (
	RoleReleaseFunds    = "CanReleaseFunds"
	RoleResolveDisputes = "CanResolveDisputes"
	RoleViewAudit       = "CanViewAudit"
)

const operatorColumns = `id, username, password_hash, is_super, created_by, created_at`

type OperatorStore struct {
	db DB
}

func NewOperatorStore(db DB) *OperatorStore {
	return &OperatorStore{db: db}
}

// IsOperator reports whether operatorID exists and whether it is a super operator.
func (s *OperatorStore) IsOperator(ctx context.Context, operatorID string) (bool, bool, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `
		SELECT is_super
		FROM operators
		WHERE id = $1
	`, operatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, errors.Wrap(err, "check operator")
	}
	return true, isSuper, nil
}

func (s *OperatorStore) HasRole(ctx context.Context, operatorID, role string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM operator_roles
		WHERE operator_id = $1 AND role = $2
	`, operatorID, role)
	return count > 0, errors.Wrap(err, "check operator role")
}

func (s *OperatorStore) Roles(ctx context.Context, operatorID string) ([]string, error) {
	var roles []string
	err := s.db.SelectContext(ctx, &roles, `
		SELECT role FROM operator_roles WHERE operator_id = $1 ORDER BY role
	`, operatorID)
	return roles, errors.Wrap(err, "list operator roles")
}

func (s *OperatorStore) GetByUsername(ctx context.Context, username string) (models.Operator, error) {
	var operator models.Operator
	err := s.db.GetContext(ctx, &operator, `SELECT `+operatorColumns+` FROM operators WHERE username = $1`, username)
	if err != nil {
		return models.Operator{}, notFound(err, "get operator")
	}
	return operator, nil
}

func (s *OperatorStore) GetByID(ctx context.Context, operatorID string) (models.Operator, error) {
	var operator models.Operator
	err := s.db.GetContext(ctx, &operator, `SELECT `+operatorColumns+` FROM operators WHERE id = $1`, operatorID)
	if err != nil {
		return models.Operator{}, notFound(err, "get operator")
	}
	return operator, nil
}

func (s *OperatorStore) List(ctx context.Context) ([]models.Operator, error) {
	var operators []models.Operator
	err := s.db.SelectContext(ctx, &operators, `SELECT `+operatorColumns+` FROM operators ORDER BY created_at`)
	return operators, errors.Wrap(err, "list operators")
}

func (s *OperatorStore) Create(ctx context.Context, tx Execer, operator models.Operator) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO operators (id, username, password_hash, is_super, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, operator.ID, operator.Username, operator.PasswordHash, operator.IsSuper, operator.CreatedBy, operator.CreatedAt)
	return err
}

func (s *OperatorStore) GrantRole(ctx context.Context, tx Execer, operatorID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO operator_roles (operator_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, operatorID, role)
	return errors.Wrap(err, "grant operator role")
}

func (s *OperatorStore) RevokeRole(ctx context.Context, tx Execer, operatorID, role string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM operator_roles WHERE operator_id = $1 AND role = $2
	`, operatorID, role)
	return errors.Wrap(err, "revoke operator role")
}

func (s *OperatorStore) HasAnyOperator(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM operators`)
	return count > 0, errors.Wrap(err, "count operators")
}

func ValidRole(role string) bool {
	switch role {
	case RoleReleaseFunds, RoleResolveDisputes, RoleViewAudit:
		return true
	}
	return false
}
