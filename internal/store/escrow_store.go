package store

import (
	"context"

	"soko/internal/models"
)

type EscrowStore struct {
	db DB
}

func NewEscrowStore(db DB) *EscrowStore {
	return &EscrowStore{db: db}
}

const escrowColumns = `id, escrow_number, checkout_session_id, session_domain, ledger_account_id, buyer_user_id, seller_user_id, amount, currency, status, created_at, released_at, refunded_at`

func (s *EscrowStore) Create(ctx context.Context, tx Execer, escrow models.EscrowAccount) error {
	query := `
		INSERT INTO escrow_accounts (id, escrow_number, checkout_session_id, session_domain, ledger_account_id, buyer_user_id, seller_user_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		escrow.ID, escrow.EscrowNumber, escrow.CheckoutSessionID, escrow.SessionDomain,
		escrow.LedgerAccountID, escrow.BuyerUserID, escrow.SellerUserID,
		escrow.Amount, escrow.Currency, escrow.Status,
	)
	return err
}

func (s *EscrowStore) GetByID(ctx context.Context, escrowID string) (models.EscrowAccount, error) {
	var row models.EscrowAccount
	err := s.db.GetContext(ctx, &row, `
		SELECT `+escrowColumns+`
		FROM escrow_accounts
		WHERE id = $1
	`, escrowID)
	if err != nil {
		return models.EscrowAccount{}, err
	}
	return row, nil
}

// GetForUpdate locks the escrow row so that two concurrent resolution
// attempts serialize instead of racing to a double release.
func (s *EscrowStore) GetForUpdate(ctx context.Context, tx Getter, escrowID string) (models.EscrowAccount, error) {
	var row models.EscrowAccount
	err := tx.GetContext(ctx, &row, `
		SELECT `+escrowColumns+`
		FROM escrow_accounts
		WHERE id = $1
		FOR UPDATE
	`, escrowID)
	if err != nil {
		return models.EscrowAccount{}, err
	}
	return row, nil
}

// FindOpenBySession returns the single non-terminal escrow for a checkout
// session, or sql.ErrNoRows. The partial unique index on
// (checkout_session_id, session_domain) guarantees at most one exists.
func (s *EscrowStore) FindOpenBySession(ctx context.Context, tx Getter, checkoutSessionID string, domain models.SessionDomain) (models.EscrowAccount, error) {
	var row models.EscrowAccount
	err := tx.GetContext(ctx, &row, `
		SELECT `+escrowColumns+`
		FROM escrow_accounts
		WHERE checkout_session_id = $1 AND session_domain = $2 AND status IN ('HELD', 'DISPUTED')
	`, checkoutSessionID, domain)
	if err != nil {
		return models.EscrowAccount{}, err
	}
	return row, nil
}

func (s *EscrowStore) NumberExists(ctx context.Context, tx Getter, escrowNumber string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM escrow_accounts WHERE escrow_number = $1
	`, escrowNumber)
	return count > 0, err
}

// MarkReleased flips a HELD or DISPUTED escrow to RELEASED. The status guard
// in the WHERE clause makes the transition and its check one statement; zero
// rows affected means the escrow was already terminal.
func (s *EscrowStore) MarkReleased(ctx context.Context, tx Execer, escrowID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET status = 'RELEASED', released_at = NOW()
		WHERE id = $1 AND status IN ('HELD', 'DISPUTED')
	`, escrowID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EscrowStore) MarkRefunded(ctx context.Context, tx Execer, escrowID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET status = 'REFUNDED', refunded_at = NOW()
		WHERE id = $1 AND status IN ('HELD', 'DISPUTED')
	`, escrowID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EscrowStore) MarkDisputed(ctx context.Context, tx Execer, escrowID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts
		SET status = 'DISPUTED'
		WHERE id = $1 AND status = 'HELD'
	`, escrowID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
