package store

import (
	"context"

	"soko/internal/models"
)

// AccountStore persists ledger accounts. Balances are mutated exclusively by
// the ledger service, under a FOR UPDATE row lock taken via GetForUpdate.
type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// ReconcileRow compares an account's stored balance against a journal replay
// of every ledger entry touching it.
type ReconcileRow struct {
	ID             string             `db:"id"`
	Type           models.AccountType `db:"type"`
	OwnerUserID    *string            `db:"owner_user_id"`
	Currency       string             `db:"currency"`
	StoredBalance  int64              `db:"stored_balance"`
	JournalBalance int64              `db:"journal_balance"`
	Difference     int64              `db:"difference"`
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.LedgerAccount) error {
	query := `
		INSERT INTO ledger_accounts (id, type, owner_user_id, currency, balance)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query, account.ID, account.Type, account.OwnerUserID, account.Currency, account.Balance)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.LedgerAccount, error) {
	var row models.LedgerAccount
	err := s.db.GetContext(ctx, &row, `
		SELECT id, type, owner_user_id, currency, balance, created_at
		FROM ledger_accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return models.LedgerAccount{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.LedgerAccount, error) {
	var row models.LedgerAccount
	err := tx.GetContext(ctx, &row, `
		SELECT id, type, owner_user_id, currency, balance, created_at
		FROM ledger_accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.LedgerAccount{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE ledger_accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}

// GetPlatformAccount resolves the singleton platform/external account for an
// account type and currency. These are seeded by migrations, never created at
// request time.
func (s *AccountStore) GetPlatformAccount(ctx context.Context, accountType models.AccountType, currency string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `
		SELECT id
		FROM ledger_accounts
		WHERE type = $1 AND owner_user_id IS NULL AND currency = $2
	`, accountType, currency)
	return id, err
}

func (s *AccountStore) Reconcile(ctx context.Context) ([]ReconcileRow, error) {
	var rows []ReconcileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id,
		       a.type,
		       a.owner_user_id,
		       a.currency,
		       a.balance AS stored_balance,
		       (COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.credit_account_id = a.id), 0)
		      - COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.debit_account_id = a.id), 0)) AS journal_balance,
		       (a.balance
		      - COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.credit_account_id = a.id), 0)
		      + COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.debit_account_id = a.id), 0)) AS difference
		FROM ledger_accounts a
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
