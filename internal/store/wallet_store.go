package store

import (
	"context"

	"soko/internal/models"
)

type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

const walletColumns = `id, owner_user_id, ledger_account_id, is_active, last_activity_at, deactivated_at, deactivated_by, deactivation_reason, created_at`

func (s *WalletStore) Create(ctx context.Context, tx Execer, wallet models.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_user_id, ledger_account_id, is_active)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query, wallet.ID, wallet.OwnerUserID, wallet.LedgerAccountID, wallet.IsActive)
	return err
}

func (s *WalletStore) GetByOwner(ctx context.Context, ownerUserID string) (models.Wallet, error) {
	var row models.Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_user_id = $1
	`, ownerUserID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetByOwnerTx(ctx context.Context, tx Getter, ownerUserID string) (models.Wallet, error) {
	var row models.Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_user_id = $1
	`, ownerUserID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) TouchActivity(ctx context.Context, tx Execer, walletID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets SET last_activity_at = NOW() WHERE id = $1
	`, walletID)
	return err
}

// SetActive records activation state and its provenance. No ledger mutation
// happens here; balances survive deactivation untouched.
func (s *WalletStore) SetActive(ctx context.Context, tx Execer, ownerUserID string, active bool, actorID, reason *string) (int64, error) {
	var res int64
	if active {
		result, err := tx.ExecContext(ctx, `
			UPDATE wallets
			SET is_active = TRUE, deactivated_at = NULL, deactivated_by = NULL, deactivation_reason = NULL
			WHERE owner_user_id = $1
		`, ownerUserID)
		if err != nil {
			return 0, err
		}
		res, err = result.RowsAffected()
		return res, err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET is_active = FALSE, deactivated_at = NOW(), deactivated_by = $2, deactivation_reason = $3
		WHERE owner_user_id = $1
	`, ownerUserID, actorID, reason)
	if err != nil {
		return 0, err
	}
	res, err = result.RowsAffected()
	return res, err
}
