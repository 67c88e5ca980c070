package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"crm_sync/internal/domain"
	"crm_sync/internal/hubspot"
)

type AccountStore interface {
	FindCurrentAccounts(ctx context.Context) ([]*domain.Account, error)
	Persist(ctx context.Context, account *domain.Account) error
}

type SyncRunStore interface {
	Record(ctx context.Context, run *domain.SyncRun) error
}

type CRMClient interface {
	SetAccessToken(token string)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*hubspot.Token, error)
	Search(ctx context.Context, req hubspot.SearchRequest) (*hubspot.SearchPage, error)
	GetByID(ctx context.Context, objectType, id string) (*hubspot.Record, error)
	BatchReadAssociations(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.Association, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Sink interface {
	Deliver(ctx context.Context, actions []domain.Action) error
	Close() error
}
