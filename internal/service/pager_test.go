package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"crm_sync/internal/domain"
	"crm_sync/internal/hubspot"
	"crm_sync/internal/service/mocks"
)

type PagerTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	client  *mocks.MockCRMClient
	tokens  *TokenManager
	account *domain.Account
}

func (s *PagerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockCRMClient(s.ctrl)
	s.account = &domain.Account{ID: "acc-1", RefreshToken: "refresh-1"}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.tokens = NewTokenManager(s.client, logger)
	// Token already valid for the whole test unless a test says otherwise.
	s.tokens.expiresAt = time.Now().Add(time.Hour)
}

func (s *PagerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPagerTestSuite(t *testing.T) {
	suite.Run(t, new(PagerTestSuite))
}

func record(id string, updatedAt time.Time) hubspot.Record {
	return hubspot.Record{
		ID:         id,
		CreatedAt:  updatedAt.Add(-time.Hour),
		UpdatedAt:  updatedAt,
		Properties: map[string]string{"name": "r" + id},
	}
}

func page(next string, records ...hubspot.Record) *hubspot.SearchPage {
	p := &hubspot.SearchPage{Results: records}
	if records == nil {
		p.Results = []hubspot.Record{}
	}
	if next != "" {
		p.Paging = &hubspot.Paging{Next: &hubspot.NextPage{After: next}}
	}
	return p
}

func (s *PagerTestSuite) newPager(watermark, now time.Time) *pager {
	return newPager(s.client, s.tokens, s.account, companySpec, watermark, now, 100)
}

func (s *PagerTestSuite) TestIteratesUntilCursorExhausted() {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	watermark := now.AddDate(0, -1, 0)

	first := record("1", watermark.Add(time.Hour))
	second := record("2", watermark.Add(2*time.Hour))

	gomock.InOrder(
		s.client.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
				s.Equal("companies", req.ObjectType)
				s.Equal("hs_lastmodifieddate", req.FilterProperty)
				s.Equal(watermark, req.Since)
				s.Equal(now, req.Until)
				s.Equal(100, req.Limit)
				s.Empty(req.After)
				return page("100", first), nil
			},
		),
		s.client.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
				s.Equal("100", req.After)
				return page("", second), nil
			},
		),
	)

	p := s.newPager(watermark, now)

	records, err := p.Next(ctx)
	s.NoError(err)
	s.Equal([]hubspot.Record{first}, records)

	records, err = p.Next(ctx)
	s.NoError(err)
	s.Equal([]hubspot.Record{second}, records)

	records, err = p.Next(ctx)
	s.NoError(err)
	s.Nil(records)
}

func (s *PagerTestSuite) TestEmptyPageTerminates() {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s.client.EXPECT().Search(ctx, gomock.Any()).Return(page(""), nil)

	p := s.newPager(now.AddDate(0, -1, 0), now)

	records, err := p.Next(ctx)
	s.NoError(err)
	s.Nil(records)

	// Exhausted pagers stay exhausted without further calls.
	records, err = p.Next(ctx)
	s.NoError(err)
	s.Nil(records)
}

func (s *PagerTestSuite) TestCapReWindowsOnLastModifiedTime() {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	watermark := now.AddDate(0, -1, 0)

	lastModified := watermark.Add(48 * time.Hour)
	capped := []hubspot.Record{
		record("1", watermark.Add(24*time.Hour)),
		record("2", lastModified),
	}

	gomock.InOrder(
		s.client.EXPECT().Search(ctx, gomock.Any()).Return(page("9900", capped...), nil),
		s.client.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
				// Cursor dropped, window re-anchored on the last record.
				s.Empty(req.After)
				s.Equal(lastModified, req.Since)
				s.Equal(now, req.Until)
				return page("", record("3", lastModified.Add(time.Hour))), nil
			},
		),
	)

	p := s.newPager(watermark, now)

	records, err := p.Next(ctx)
	s.NoError(err)
	s.Len(records, 2)

	records, err = p.Next(ctx)
	s.NoError(err)
	s.Len(records, 1)
}

func (s *PagerTestSuite) TestMalformedEnvelopeFails() {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s.client.EXPECT().Search(ctx, gomock.Any()).Return(&hubspot.SearchPage{}, nil)

	p := s.newPager(now.AddDate(0, -1, 0), now)

	_, err := p.Next(ctx)
	s.ErrorIs(err, hubspot.ErrEmptyResponse)
}

func (s *PagerTestSuite) TestTokenCheckedBeforeEveryPage() {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	watermark := now.AddDate(0, -1, 0)

	// Expired immediately: every page fetch forces an exchange.
	s.tokens.expiresAt = time.Time{}
	s.client.EXPECT().ExchangeRefreshToken(ctx, "refresh-1").Return(
		&hubspot.Token{AccessToken: "access", ExpiresIn: 0}, nil,
	).Times(2)
	s.client.EXPECT().SetAccessToken("access").Times(2)

	gomock.InOrder(
		s.client.EXPECT().Search(ctx, gomock.Any()).Return(page("50", record("1", watermark.Add(time.Hour))), nil),
		s.client.EXPECT().Search(ctx, gomock.Any()).Return(page("", record("2", watermark.Add(2*time.Hour))), nil),
	)

	p := s.newPager(watermark, now)

	_, err := p.Next(ctx)
	s.NoError(err)
	_, err = p.Next(ctx)
	s.NoError(err)
}

func (s *PagerTestSuite) TestTokenFailureAbortsExtraction() {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s.tokens.expiresAt = time.Time{}
	s.client.EXPECT().ExchangeRefreshToken(ctx, "refresh-1").Return(nil, context.DeadlineExceeded)

	p := s.newPager(now.AddDate(0, -1, 0), now)

	_, err := p.Next(ctx)
	s.Error(err)
}
