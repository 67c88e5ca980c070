package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"crm_sync/internal/domain"
)

type SyncRunStore struct {
	db *sqlx.DB
}

func NewSyncRunStore(db *sqlx.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

// Record appends one audit row for an account's sync pass.
func (s *SyncRunStore) Record(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO sync_runs (
			account_id, started_at, duration_ms,
			company_actions, contact_actions, meeting_actions,
			errors, skipped
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		run.AccountID,
		run.StartedAt,
		run.Duration.Milliseconds(),
		run.CompanyActions,
		run.ContactActions,
		run.MeetingActions,
		run.Errors,
		run.Skipped,
	)
	return err
}

// LastRuns returns the most recent audit rows for an account, newest first.
func (s *SyncRunStore) LastRuns(ctx context.Context, accountID string, limit int) ([]domain.SyncRun, error) {
	query := `
		SELECT account_id, started_at, duration_ms,
			company_actions, contact_actions, meeting_actions,
			errors, skipped
		FROM sync_runs
		WHERE account_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		var durationMs int64
		if err := rows.Scan(
			&run.AccountID,
			&run.StartedAt,
			&durationMs,
			&run.CompanyActions,
			&run.ContactActions,
			&run.MeetingActions,
			&run.Errors,
			&run.Skipped,
		); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
