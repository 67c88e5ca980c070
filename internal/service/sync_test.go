package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"crm_sync/internal/config"
	"crm_sync/internal/domain"
	"crm_sync/internal/hubspot"
	"crm_sync/internal/service/mocks"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	accounts  *mocks.MockAccountStore
	runs      *mocks.MockSyncRunStore
	txManager *mocks.MockTransactionManager
	client    *mocks.MockCRMClient
	sink      *mocks.MockSink

	service *SyncService
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.accounts = mocks.NewMockAccountStore(s.ctrl)
	s.runs = mocks.NewMockSyncRunStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.client = mocks.NewMockCRMClient(s.ctrl)
	s.sink = mocks.NewMockSink(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewSyncService(
		s.accounts,
		s.runs,
		s.txManager,
		s.client,
		s.sink,
		s.logger,
		config.SyncConfig{PageSize: 100, FlushThreshold: 2000},
	)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) expectTokenExchange() {
	s.client.EXPECT().ExchangeRefreshToken(gomock.Any(), gomock.Any()).Return(&hubspot.Token{
		AccessToken: "access",
		ExpiresIn:   3600,
	}, nil).AnyTimes()
	s.client.EXPECT().SetAccessToken("access").AnyTimes()
}

func (s *SyncServiceTestSuite) expectPersist(account *domain.Account) {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.accounts.EXPECT().Persist(gomock.Any(), account).Return(nil)
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *SyncServiceTestSuite) TestRun_NoAccounts() {
	ctx := context.Background()

	s.accounts.EXPECT().FindCurrentAccounts(ctx).Return(nil, nil)

	stats, err := s.service.Run(ctx)

	s.ErrorIs(err, ErrNoAccounts)
	s.Nil(stats)
}

func (s *SyncServiceTestSuite) TestRun_AccountStoreError() {
	ctx := context.Background()

	s.accounts.EXPECT().FindCurrentAccounts(ctx).Return(nil, errors.New("db down"))

	_, err := s.service.Run(ctx)

	s.Error(err)
	s.Contains(err.Error(), "find accounts")
}

func (s *SyncServiceTestSuite) TestRun_TokenFailureSkipsAccount() {
	ctx := context.Background()
	account := &domain.Account{ID: "acc-1", RefreshToken: "bad"}

	s.accounts.EXPECT().FindCurrentAccounts(ctx).Return([]*domain.Account{account}, nil)
	s.client.EXPECT().ExchangeRefreshToken(gomock.Any(), "bad").Return(nil, errors.New("invalid grant"))

	var recorded *domain.SyncRun
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, run *domain.SyncRun) error {
			recorded = run
			return nil
		},
	)

	stats, err := s.service.Run(ctx)

	s.NoError(err)
	s.Equal(1, stats.SkippedAccounts)
	s.Equal(0, stats.TotalActions)
	s.Require().NotNil(recorded)
	s.True(recorded.Skipped)
	s.True(account.LastPulledDates.Companies.IsZero())
}

func (s *SyncServiceTestSuite) TestRun_SyncsAllEntities() {
	ctx := context.Background()
	watermark := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	account := &domain.Account{
		ID:           "acc-1",
		RefreshToken: "refresh-1",
		LastPulledDates: domain.LastPulledDates{
			Companies: watermark,
			Contacts:  watermark,
			Meetings:  watermark,
		},
	}

	s.accounts.EXPECT().FindCurrentAccounts(ctx).Return([]*domain.Account{account}, nil)
	s.expectTokenExchange()

	company := hubspot.Record{
		ID:         "101",
		CreatedAt:  watermark.AddDate(0, 0, 5),
		UpdatedAt:  watermark.AddDate(0, 0, 5),
		Properties: map[string]string{"name": "Acme", "domain": "acme.test"},
	}
	contact := hubspot.Record{
		ID:         "7",
		CreatedAt:  watermark.AddDate(0, 0, 3),
		UpdatedAt:  watermark.AddDate(0, 0, 3),
		Properties: map[string]string{"email": "jane@corp.test", "firstname": "Jane"},
	}

	s.client.EXPECT().Search(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
			switch req.ObjectType {
			case "companies":
				return &hubspot.SearchPage{Results: []hubspot.Record{company}}, nil
			case "contacts":
				return &hubspot.SearchPage{Results: []hubspot.Record{contact}}, nil
			default:
				return &hubspot.SearchPage{Results: []hubspot.Record{}}, nil
			}
		},
	).Times(3)

	s.client.EXPECT().BatchReadAssociations(gomock.Any(), "contacts", "companies", []string{"7"}).Return(
		[]hubspot.Association{{FromID: "7", ToIDs: []string{"101"}}}, nil,
	).Times(1)

	var delivered []domain.Action
	s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, actions []domain.Action) error {
			delivered = append(delivered, actions...)
			return nil
		},
	)

	s.expectPersist(account)

	stats, err := s.service.Run(ctx)

	s.NoError(err)
	s.Equal(1, stats.Accounts)
	s.Equal(0, stats.SkippedAccounts)
	s.Equal(2, stats.TotalActions)
	s.Equal(0, stats.Errors)
	s.Len(delivered, 2)

	// Every entity completed, so every watermark advanced.
	s.True(account.LastPulledDates.Companies.After(watermark))
	s.True(account.LastPulledDates.Contacts.After(watermark))
	s.True(account.LastPulledDates.Meetings.After(watermark))

	names := []string{delivered[0].ActionName, delivered[1].ActionName}
	s.Contains(names, domain.ActionCompanyCreated)
	s.Contains(names, domain.ActionContactCreated)
}

func (s *SyncServiceTestSuite) TestRun_EntityFailureIsIsolated() {
	ctx := context.Background()
	watermark := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	account := &domain.Account{
		ID:           "acc-1",
		RefreshToken: "refresh-1",
		LastPulledDates: domain.LastPulledDates{
			Companies: watermark,
			Contacts:  watermark,
			Meetings:  watermark,
		},
	}

	s.accounts.EXPECT().FindCurrentAccounts(ctx).Return([]*domain.Account{account}, nil)
	s.expectTokenExchange()

	contact := hubspot.Record{
		ID:         "7",
		CreatedAt:  watermark.AddDate(0, 0, 3),
		UpdatedAt:  watermark.AddDate(0, 0, 3),
		Properties: map[string]string{"email": "jane@corp.test"},
	}

	s.client.EXPECT().Search(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
			switch req.ObjectType {
			case "companies":
				return nil, errors.New("search exploded")
			case "contacts":
				return &hubspot.SearchPage{Results: []hubspot.Record{contact}}, nil
			default:
				return &hubspot.SearchPage{Results: []hubspot.Record{}}, nil
			}
		},
	).Times(3)

	s.client.EXPECT().BatchReadAssociations(gomock.Any(), "contacts", "companies", []string{"7"}).Return(nil, nil)

	s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, actions []domain.Action) error {
			s.Len(actions, 1)
			return nil
		},
	)

	s.expectPersist(account)

	stats, err := s.service.Run(ctx)

	s.NoError(err)
	s.Equal(1, stats.Errors)
	s.Equal(1, stats.TotalActions)

	// The failed entity keeps its old watermark; siblings advance.
	s.Equal(watermark, account.LastPulledDates.Companies)
	s.True(account.LastPulledDates.Contacts.After(watermark))
	s.True(account.LastPulledDates.Meetings.After(watermark))
}

func (s *SyncServiceTestSuite) TestRun_AccountsProcessedSequentially() {
	ctx := context.Background()
	first := &domain.Account{ID: "acc-1", RefreshToken: "r1"}
	second := &domain.Account{ID: "acc-2", RefreshToken: "r2"}

	s.accounts.EXPECT().FindCurrentAccounts(ctx).Return([]*domain.Account{first, second}, nil)
	s.expectTokenExchange()

	s.client.EXPECT().Search(gomock.Any(), gomock.Any()).Return(
		&hubspot.SearchPage{Results: []hubspot.Record{}}, nil,
	).Times(6)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).Times(2)
	s.accounts.EXPECT().Persist(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Run(ctx)

	s.NoError(err)
	s.Equal(2, stats.Accounts)
	s.Equal(0, stats.TotalActions)
}
