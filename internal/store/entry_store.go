package store

import (
	"context"

	"soko/internal/models"
	"soko/internal/money"
)

// EntryStore is the append-only journal. Entries are inserted once and never
// updated or deleted.
type EntryStore struct {
	db DB
}

func NewEntryStore(db DB) *EntryStore {
	return &EntryStore{db: db}
}

func (s *EntryStore) Insert(ctx context.Context, tx Execer, entry models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, transaction_ref, debit_account_id, credit_account_id, amount, currency, entry_type, reference_type, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		entry.ID, entry.TransactionRef, entry.DebitAccountID, entry.CreditAccountID,
		entry.Amount, entry.Currency, entry.EntryType, entry.ReferenceType, entry.ReferenceID,
	)
	return err
}

// GetByTransactionRef is the idempotency probe: a retried operation finds the
// entry its first attempt committed and returns it unchanged.
func (s *EntryStore) GetByTransactionRef(ctx context.Context, tx Getter, transactionRef string) (models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := tx.GetContext(ctx, &row, `
		SELECT id, transaction_ref, debit_account_id, credit_account_id, amount, currency, entry_type, reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE transaction_ref = $1
	`, transactionRef)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return row, nil
}

func (s *EntryStore) ListByReference(ctx context.Context, referenceType, referenceID string) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, transaction_ref, debit_account_id, credit_account_id, amount, currency, entry_type, reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at
	`, referenceType, referenceID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// JournalBalance replays the journal for one account: credits in, debits out.
// SUM comes back from the driver as numeric text, or NULL for an account with
// no entries, so the raw value is normalized rather than scanned directly.
func (s *EntryStore) JournalBalance(ctx context.Context, accountID string) (int64, error) {
	var raw any
	err := s.db.GetContext(ctx, &raw, `
		SELECT SUM(CASE WHEN credit_account_id = $1 THEN amount ELSE -amount END)
		FROM ledger_entries
		WHERE credit_account_id = $1 OR debit_account_id = $1
	`, accountID)
	if err != nil {
		return 0, err
	}
	return money.ValueToInt64(raw), nil
}
