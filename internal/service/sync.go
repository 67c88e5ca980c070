package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crm_sync/internal/config"
	"crm_sync/internal/domain"
)

// ErrNoAccounts is returned when there is nothing to sync; it is the only
// condition that fails a whole run.
var ErrNoAccounts = errors.New("no accounts to sync")

// SyncService pulls recently modified CRM records for every account,
// normalizes them into actions and pushes them through the batch queue to
// the sink. Accounts are processed strictly sequentially; within one
// account the three entity extractions run concurrently.
type SyncService struct {
	accounts  AccountStore
	runs      SyncRunStore
	txManager TransactionManager
	client    CRMClient
	tokens    *TokenManager
	resolver  *associationResolver
	queue     *ActionQueue
	logger    *slog.Logger
	pageSize  int
	now       func() time.Time
}

func NewSyncService(
	accounts AccountStore,
	runs SyncRunStore,
	txManager TransactionManager,
	client CRMClient,
	sink Sink,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		accounts:  accounts,
		runs:      runs,
		txManager: txManager,
		client:    client,
		tokens:    NewTokenManager(client, logger),
		resolver:  &associationResolver{client: client},
		queue:     NewActionQueue(sink, cfg.FlushThreshold, logger),
		logger:    logger,
		pageSize:  cfg.PageSize,
		now:       time.Now,
	}
}

// Run syncs every current account once. Per-account and per-entity
// failures are recovered and logged; only the absence of accounts fails
// the run itself.
func (s *SyncService) Run(ctx context.Context) (*domain.SyncStats, error) {
	started := s.now()
	s.logger.Info("starting sync run")

	accounts, err := s.accounts.FindCurrentAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("find accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	stats := &domain.SyncStats{Accounts: len(accounts)}
	for _, account := range accounts {
		run := s.syncAccount(ctx, account)
		if run.Skipped {
			stats.SkippedAccounts++
		}
		stats.TotalActions += run.Actions()
		stats.Errors += run.Errors
	}
	stats.Duration = s.now().Sub(started)

	s.logger.Info("sync run completed",
		"accounts", stats.Accounts,
		"skipped_accounts", stats.SkippedAccounts,
		"actions", stats.TotalActions,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (s *SyncService) syncAccount(ctx context.Context, account *domain.Account) *domain.SyncRun {
	logger := s.logger.With("account_id", account.ID)
	run := &domain.SyncRun{AccountID: account.ID, StartedAt: s.now()}

	logger.Info("start processing account")

	// Token failure is unrecoverable for this account; skip it and move on.
	if err := s.tokens.Refresh(ctx, account); err != nil {
		logger.Error("token refresh failed, skipping account", "error", err)
		run.Skipped = true
		run.Duration = s.now().Sub(run.StartedAt)
		s.recordRun(ctx, run, logger)
		return run
	}

	for _, result := range s.extractAll(ctx, account) {
		if result.err != nil {
			// Treated as zero actions for this entity; siblings and the
			// account's other watermarks are unaffected.
			logger.Error("extraction failed", "entity", result.entity, "error", result.err)
			run.Errors++
			continue
		}

		if err := s.queue.Push(ctx, result.actions); err != nil {
			logger.Error("push actions", "entity", result.entity, "error", err)
			run.Errors++
		}

		account.LastPulledDates.Set(result.entity, result.completedAt)
		switch result.entity {
		case domain.EntityCompanies:
			run.CompanyActions = len(result.actions)
		case domain.EntityContacts:
			run.ContactActions = len(result.actions)
		case domain.EntityMeetings:
			run.MeetingActions = len(result.actions)
		}
	}

	if err := s.queue.Drain(ctx); err != nil {
		logger.Error("drain queue", "error", err)
		run.Errors++
	}

	run.Duration = s.now().Sub(run.StartedAt)
	s.persistAccount(ctx, account, run, logger)

	logger.Info("finish processing account",
		"actions", run.Actions(),
		"companies", run.CompanyActions,
		"contacts", run.ContactActions,
		"meetings", run.MeetingActions,
		"errors", run.Errors,
		"duration", run.Duration,
	)
	return run
}

// extractAll runs the three entity extractions concurrently, each
// independently fault-isolated.
func (s *SyncService) extractAll(ctx context.Context, account *domain.Account) []extractResult {
	extractions := []struct {
		entity domain.EntityType
		fn     func(context.Context, *domain.Account) ([]domain.Action, time.Time, error)
	}{
		{domain.EntityCompanies, s.extractCompanies},
		{domain.EntityContacts, s.extractContacts},
		{domain.EntityMeetings, s.extractMeetings},
	}

	results := make([]extractResult, len(extractions))
	var wg sync.WaitGroup
	for i, extraction := range extractions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actions, completedAt, err := extraction.fn(ctx, account)
			results[i] = extractResult{
				entity:      extraction.entity,
				actions:     actions,
				completedAt: completedAt,
				err:         err,
			}
		}()
	}
	wg.Wait()
	return results
}

// persistAccount writes the advanced watermarks, the possibly rotated
// refresh token and the run's audit row in one transaction. A persistence
// failure is logged but does not fail the run.
func (s *SyncService) persistAccount(ctx context.Context, account *domain.Account, run *domain.SyncRun, logger *slog.Logger) {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.accounts.Persist(txCtx, account); err != nil {
			return fmt.Errorf("persist account: %w", err)
		}
		if err := s.runs.Record(txCtx, run); err != nil {
			return fmt.Errorf("record sync run: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("persist account state", "error", err)
	}
}

func (s *SyncService) recordRun(ctx context.Context, run *domain.SyncRun, logger *slog.Logger) {
	if err := s.runs.Record(ctx, run); err != nil {
		logger.Error("record sync run", "error", err)
	}
}
