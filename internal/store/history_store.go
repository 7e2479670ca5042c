package store

import (
	"context"
	"fmt"

	"soko/internal/models"
)

// HistoryStore is the per-owner display projection. Rows are written only as
// a side effect of ledger postings and are never updated.
type HistoryStore struct {
	db DB
}

func NewHistoryStore(db DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Insert(ctx context.Context, tx Execer, rows []models.TransactionHistory) error {
	query := `
		INSERT INTO transaction_history (id, transaction_ref, account_owner, entry_type, direction, amount, currency, title, description, reference_type, reference_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query,
			row.ID, row.TransactionRef, row.AccountOwner, row.EntryType, row.Direction,
			row.Amount, row.Currency, row.Title, row.Description,
			row.ReferenceType, row.ReferenceID, row.Status,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *HistoryStore) ListByOwner(ctx context.Context, ownerUserID string, entryType string, limit, offset int) ([]models.TransactionHistory, error) {
	var rows []models.TransactionHistory
	query := `
		SELECT id, transaction_ref, account_owner, entry_type, direction, amount, currency, title, description, reference_type, reference_id, status, created_at
		FROM transaction_history
		WHERE account_owner = $1
	`
	args := []any{ownerUserID}
	param := 2
	if entryType != "" {
		query += fmt.Sprintf(" AND entry_type = $%d", param)
		args = append(args, entryType)
		param++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", param, param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *HistoryStore) CountByOwner(ctx context.Context, ownerUserID string, entryType string) (int, error) {
	var count int
	if entryType != "" {
		err := s.db.GetContext(ctx, &count, `
			SELECT COUNT(1) FROM transaction_history WHERE account_owner = $1 AND entry_type = $2
		`, ownerUserID, entryType)
		return count, err
	}
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM transaction_history WHERE account_owner = $1
	`, ownerUserID)
	return count, err
}
