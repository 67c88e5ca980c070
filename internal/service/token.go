package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crm_sync/internal/domain"
)

// TokenManager owns the current access token's expiry and refreshes the
// token through the CRM client when it lapses. One instance serves a whole
// run; the mutex covers concurrent checks from the per-entity extractions
// and serializes refresh-token rotation on the account.
type TokenManager struct {
	client CRMClient
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	expiresAt time.Time
}

func NewTokenManager(client CRMClient, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureValid refreshes the access token if the tracked expiry has passed.
// Called before every page fetch because expiry can occur mid-run.
func (m *TokenManager) EnsureValid(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().Before(m.expiresAt) {
		return nil
	}
	return m.refreshLocked(ctx, account)
}

// Refresh forces a token exchange regardless of the tracked expiry.
func (m *TokenManager) Refresh(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx, account)
}

func (m *TokenManager) refreshLocked(ctx context.Context, account *domain.Account) error {
	token, err := m.client.ExchangeRefreshToken(ctx, account.RefreshToken)
	if err != nil {
		return fmt.Errorf("exchange refresh token: %w", err)
	}

	m.client.SetAccessToken(token.AccessToken)
	m.expiresAt = m.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}

	m.logger.Debug("access token refreshed", "expires_at", m.expiresAt)
	return nil
}
