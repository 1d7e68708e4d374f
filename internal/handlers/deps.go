package handlers

import (
	"context"
	"iter"

	"escrowdesk/internal/models"
	"escrowdesk/internal/services"
	"escrowdesk/internal/store"
)

type DealService interface {
	CreateDeal(ctx context.Context, req services.CreateDealRequest) (models.Deal, error)
	Get(ctx context.Context, code string) (models.Deal, error)
	ConfirmEscrow(ctx context.Context, code string, actor services.Actor) (models.Deal, error)
	ConfirmPayment(ctx context.Context, code string, actor services.Actor) (models.Deal, error)
	Release(ctx context.Context, code string, actor services.Actor) (models.Deal, error)
	Cancel(ctx context.Context, code string, actor services.Actor) (models.Deal, error)
	RaiseDispute(ctx context.Context, code string, actor services.Actor) (models.Deal, error)
	ResolveDispute(ctx context.Context, code string, outcome models.DealStatus, actor services.Actor) (models.Deal, error)
	RemainingSeconds(deal models.Deal) int64
}

type ListingService interface {
	Create(ctx context.Context, req services.CreateListingRequest) (models.Listing, error)
	Get(ctx context.Context, id int64) (models.Listing, error)
	List(ctx context.Context, filter store.ListingFilter) iter.Seq2[models.Listing, error]
	Counts(ctx context.Context) (store.ListingCounts, error)
	Close(ctx context.Context, id int64, actor services.Actor) (models.Listing, error)
}

type UserService interface {
	Create(ctx context.Context, req services.CreateUserRequest) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	FindByTelegram(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	SetVerified(ctx context.Context, userID string, verified bool, actor services.Actor) (models.User, error)
}

type OperatorService interface {
	Login(ctx context.Context, username, password string) (string, models.Operator, error)
	Profile(ctx context.Context, operatorID string) (services.OperatorProfile, error)
	Create(ctx context.Context, req services.CreateOperatorRequest) (models.Operator, error)
	List(ctx context.Context) ([]models.Operator, error)
	GrantRole(ctx context.Context, operatorID, role string, actor services.Actor) error
	RevokeRole(ctx context.Context, operatorID, role string, actor services.Actor) error
}

// OperatorStore backs the role checks in front of operator routes.
type OperatorStore interface {
	IsOperator(ctx context.Context, operatorID string) (bool, bool, error)
	HasRole(ctx context.Context, operatorID, role string) (bool, error)
}

type DealLister interface {
	List(ctx context.Context, filter store.DealFilter, limit, offset int) ([]models.Deal, error)
	Stats(ctx context.Context) (store.DealStats, error)
}

type AuditStore interface {
	List(ctx context.Context, filter store.AuditFilter, limit, offset int) ([]models.AuditEntry, error)
	History(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
}

type EventReader interface {
	After(index uint64, limit int) ([]models.DealEvent, error)
	CurrentIndex() uint64
}
