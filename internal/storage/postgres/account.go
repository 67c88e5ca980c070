package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"crm_sync/internal/domain"
)

type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

type accountRow struct {
	ID                string       `db:"id"`
	RefreshToken      string       `db:"refresh_token"`
	CompaniesPulledAt sql.NullTime `db:"companies_pulled_at"`
	ContactsPulledAt  sql.NullTime `db:"contacts_pulled_at"`
	MeetingsPulledAt  sql.NullTime `db:"meetings_pulled_at"`
}

func (r accountRow) toDomain() *domain.Account {
	account := &domain.Account{
		ID:           r.ID,
		RefreshToken: r.RefreshToken,
	}
	if r.CompaniesPulledAt.Valid {
		account.LastPulledDates.Companies = r.CompaniesPulledAt.Time
	}
	if r.ContactsPulledAt.Valid {
		account.LastPulledDates.Contacts = r.ContactsPulledAt.Time
	}
	if r.MeetingsPulledAt.Valid {
		account.LastPulledDates.Meetings = r.MeetingsPulledAt.Time
	}
	return account
}

// FindCurrentAccounts returns every account enrolled for syncing. A never
// pulled entity comes back with a zero watermark.
func (s *AccountStore) FindCurrentAccounts(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT id, refresh_token, companies_pulled_at, contacts_pulled_at, meetings_pulled_at
		FROM accounts
		ORDER BY id`

	var rows []accountRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, len(rows))
	for i, row := range rows {
		accounts[i] = row.toDomain()
	}
	return accounts, nil
}

// Persist writes the account's watermarks and refresh token back.
func (s *AccountStore) Persist(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts SET
			refresh_token = $2,
			companies_pulled_at = $3,
			contacts_pulled_at = $4,
			meetings_pulled_at = $5,
			updated_at = $6
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		account.ID,
		account.RefreshToken,
		nullableTime(account.LastPulledDates.Companies),
		nullableTime(account.LastPulledDates.Contacts),
		nullableTime(account.LastPulledDates.Meetings),
		time.Now().UTC(),
	)
	return err
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
