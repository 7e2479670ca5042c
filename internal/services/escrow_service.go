package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"soko/internal/db"
	"soko/internal/models"
	"soko/internal/money"
	"soko/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type EscrowStore interface {
	Create(ctx context.Context, tx store.Execer, escrow models.EscrowAccount) error
	GetByID(ctx context.Context, escrowID string) (models.EscrowAccount, error)
	GetForUpdate(ctx context.Context, tx store.Getter, escrowID string) (models.EscrowAccount, error)
	FindOpenBySession(ctx context.Context, tx store.Getter, checkoutSessionID string, domain models.SessionDomain) (models.EscrowAccount, error)
	NumberExists(ctx context.Context, tx store.Getter, escrowNumber string) (bool, error)
	MarkReleased(ctx context.Context, tx store.Execer, escrowID string) (int64, error)
	MarkRefunded(ctx context.Context, tx store.Execer, escrowID string) (int64, error)
	MarkDisputed(ctx context.Context, tx store.Execer, escrowID string) (int64, error)
}

// WalletProvider lets the escrow lifecycle create counterpart wallets inside
// its own transaction and push balance updates after it commits.
type WalletProvider interface {
	EnsureWalletTx(ctx context.Context, tx store.Tx, ownerUserID string) (models.Wallet, error)
	NotifyBalance(ctx context.Context, ownerUserID string)
}

// EscrowService drives the HELD -> (RELEASED | REFUNDED | DISPUTED) state
// machine. Every transition locks the escrow row before touching any ledger
// account, so release and refund on the same escrow serialize and exactly
// one of them wins.
type EscrowService struct {
	txRunner db.TxRunner
	ledger   EntryApplier
	accounts AccountStore
	escrows  EscrowStore
	wallets  WalletProvider
	audit    AuditStore
	currency string
}

func NewEscrowService(txRunner db.TxRunner, ledger EntryApplier, accounts AccountStore, escrows EscrowStore, wallets WalletProvider, audit AuditStore, currency string) *EscrowService {
	return &EscrowService{
		txRunner: txRunner,
		ledger:   ledger,
		accounts: accounts,
		escrows:  escrows,
		wallets:  wallets,
		audit:    audit,
		currency: currency,
	}
}

type HoldRequest struct {
	CheckoutSessionID string
	SessionDomain     models.SessionDomain
	BuyerUserID       string
	SellerUserID      string
	AmountMinor       int64
	Currency          string
}

// Hold debits the buyer's wallet into a freshly scoped escrow ledger account
// and records the escrow in state HELD. Re-calling with the same checkout
// session and the same parameters returns the original escrow unchanged; a
// non-terminal escrow with conflicting parameters is ErrDuplicateEscrow.
// The hold posting is keyed by the escrow number, not the session, so a
// session whose previous escrow has resolved funds a fresh escrow on re-hold.
func (s *EscrowService) Hold(ctx context.Context, req HoldRequest) (models.EscrowAccount, error) {
	if req.AmountMinor <= 0 {
		return models.EscrowAccount{}, ErrInvalidAmount
	}
	if req.CheckoutSessionID == "" || req.BuyerUserID == "" || req.SellerUserID == "" {
		return models.EscrowAccount{}, ErrAccountNotFound
	}
	if req.Currency != "" && req.Currency != s.currency {
		return models.EscrowAccount{}, ErrCurrencyMismatch
	}

	var escrow models.EscrowAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.escrows.FindOpenBySession(ctx, tx, req.CheckoutSessionID, req.SessionDomain)
		if err == nil {
			if existing.BuyerUserID == req.BuyerUserID && existing.SellerUserID == req.SellerUserID && existing.Amount == req.AmountMinor {
				escrow = existing
				return nil
			}
			return ErrDuplicateEscrow
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		buyerWallet, err := s.wallets.EnsureWalletTx(ctx, tx, req.BuyerUserID)
		if err != nil {
			return err
		}
		if !buyerWallet.IsActive {
			return ErrWalletInactive
		}

		escrowAccount := models.LedgerAccount{
			ID:       uuid.NewString(),
			Type:     models.AccountEscrow,
			Currency: s.currency,
			Balance:  0,
		}
		if err := s.accounts.Create(ctx, tx, escrowAccount); err != nil {
			return err
		}

		number, err := s.generateEscrowNumber(ctx, tx)
		if err != nil {
			return err
		}

		escrow = models.EscrowAccount{
			ID:                uuid.NewString(),
			EscrowNumber:      number,
			CheckoutSessionID: req.CheckoutSessionID,
			SessionDomain:     req.SessionDomain,
			LedgerAccountID:   escrowAccount.ID,
			BuyerUserID:       req.BuyerUserID,
			SellerUserID:      req.SellerUserID,
			Amount:            req.AmountMinor,
			Currency:          s.currency,
			Status:            models.EscrowHeld,
			CreatedAt:         time.Now().UTC(),
		}

		if _, err := s.ledger.ApplyEntry(ctx, tx, ApplyEntryInput{
			TransactionRef:  fmt.Sprintf("HOLD-%s", number),
			DebitAccountID:  buyerWallet.LedgerAccountID,
			CreditAccountID: escrowAccount.ID,
			Amount:          req.AmountMinor,
			EntryType:       models.EntryPurchase,
			ReferenceType:   "CHECKOUT_SESSION",
			ReferenceID:     req.CheckoutSessionID,
			Description:     fmt.Sprintf("Escrow %s", number),
		}); err != nil {
			return err
		}
		if err := s.escrows.Create(ctx, tx, escrow); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"escrow_number": number,
			"amount":        money.FormatMinor(req.AmountMinor),
			"seller":        req.SellerUserID,
		})
		return s.audit.Log(ctx, tx, req.BuyerUserID, "escrow_hold", "escrow", escrow.ID, string(data))
	})
	if err != nil {
		return models.EscrowAccount{}, err
	}
	s.wallets.NotifyBalance(ctx, req.BuyerUserID)
	return escrow, nil
}

// Release resolves a HELD or DISPUTED escrow in the seller's favor,
// splitting the held amount into a seller share and a platform fee. Both
// postings and the status flip commit as one unit.
func (s *EscrowService) Release(ctx context.Context, escrowID string, feePercent decimal.Decimal, actorID string) (models.EscrowAccount, error) {
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return models.EscrowAccount{}, ErrInvalidAmount
	}
	var escrow models.EscrowAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		esc, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}
		if esc.Status.Terminal() {
			return ErrInvalidEscrowState
		}

		feeMinor := decimal.NewFromInt(esc.Amount).Mul(feePercent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
		sellerMinor := esc.Amount - feeMinor

		sellerWallet, err := s.wallets.EnsureWalletTx(ctx, tx, esc.SellerUserID)
		if err != nil {
			return err
		}
		// Release is an incoming credit for the seller; wallet deactivation
		// does not block it. A 100% fee leaves the seller share at zero, in
		// which case only the fee posting is made.
		if sellerMinor > 0 {
			if _, err := s.ledger.ApplyEntry(ctx, tx, ApplyEntryInput{
				TransactionRef:  fmt.Sprintf("RELEASE-%s", esc.EscrowNumber),
				DebitAccountID:  esc.LedgerAccountID,
				CreditAccountID: sellerWallet.LedgerAccountID,
				Amount:          sellerMinor,
				EntryType:       models.EntryEscrowRelease,
				ReferenceType:   "ESCROW",
				ReferenceID:     esc.ID,
				Description:     fmt.Sprintf("Escrow %s released", esc.EscrowNumber),
			}); err != nil {
				return err
			}
		}
		if feeMinor > 0 {
			revenueID, err := s.accounts.GetPlatformAccount(ctx, models.AccountPlatformRevenue, esc.Currency)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrAccountNotFound
				}
				return err
			}
			if _, err := s.ledger.ApplyEntry(ctx, tx, ApplyEntryInput{
				TransactionRef:  fmt.Sprintf("FEE-%s", esc.EscrowNumber),
				DebitAccountID:  esc.LedgerAccountID,
				CreditAccountID: revenueID,
				Amount:          feeMinor,
				EntryType:       models.EntryFeeCollection,
				ReferenceType:   "ESCROW",
				ReferenceID:     esc.ID,
				Description:     fmt.Sprintf("Platform fee for escrow %s", esc.EscrowNumber),
			}); err != nil {
				return err
			}
		}

		rows, err := s.escrows.MarkReleased(ctx, tx, esc.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidEscrowState
		}
		now := time.Now().UTC()
		esc.Status = models.EscrowReleased
		esc.ReleasedAt = &now
		escrow = esc

		data, _ := json.Marshal(map[string]string{
			"seller_amount": money.FormatMinor(sellerMinor),
			"fee_amount":    money.FormatMinor(feeMinor),
			"fee_percent":   feePercent.String(),
		})
		return s.audit.Log(ctx, tx, actorID, "escrow_release", "escrow", esc.ID, string(data))
	})
	if err != nil {
		return models.EscrowAccount{}, err
	}
	s.wallets.NotifyBalance(ctx, escrow.SellerUserID)
	return escrow, nil
}

// Refund resolves a HELD or DISPUTED escrow back to the buyer in full. A
// refund out of a dispute is journaled as DISPUTE_REFUND so the audit trail
// distinguishes the two paths.
func (s *EscrowService) Refund(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error) {
	var escrow models.EscrowAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		esc, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}
		if esc.Status.Terminal() {
			return ErrInvalidEscrowState
		}
		entryType := models.EntryRefund
		if esc.Status == models.EscrowDisputed {
			entryType = models.EntryDisputeRefund
		}

		buyerWallet, err := s.wallets.EnsureWalletTx(ctx, tx, esc.BuyerUserID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ApplyEntry(ctx, tx, ApplyEntryInput{
			TransactionRef:  fmt.Sprintf("REFUND-%s", esc.EscrowNumber),
			DebitAccountID:  esc.LedgerAccountID,
			CreditAccountID: buyerWallet.LedgerAccountID,
			Amount:          esc.Amount,
			EntryType:       entryType,
			ReferenceType:   "ESCROW",
			ReferenceID:     esc.ID,
			Description:     fmt.Sprintf("Escrow %s refunded", esc.EscrowNumber),
		}); err != nil {
			return err
		}

		rows, err := s.escrows.MarkRefunded(ctx, tx, esc.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidEscrowState
		}
		now := time.Now().UTC()
		esc.Status = models.EscrowRefunded
		esc.RefundedAt = &now
		escrow = esc

		data, _ := json.Marshal(map[string]string{"amount": money.FormatMinor(esc.Amount)})
		return s.audit.Log(ctx, tx, actorID, "escrow_refund", "escrow", esc.ID, string(data))
	})
	if err != nil {
		return models.EscrowAccount{}, err
	}
	s.wallets.NotifyBalance(ctx, escrow.BuyerUserID)
	return escrow, nil
}

// Dispute flags a HELD escrow without moving money.
func (s *EscrowService) Dispute(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error) {
	var escrow models.EscrowAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		esc, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}
		if esc.Status != models.EscrowHeld {
			return ErrInvalidEscrowState
		}
		rows, err := s.escrows.MarkDisputed(ctx, tx, esc.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidEscrowState
		}
		esc.Status = models.EscrowDisputed
		escrow = esc
		return s.audit.Log(ctx, tx, actorID, "escrow_dispute", "escrow", esc.ID, "{}")
	})
	if err != nil {
		return models.EscrowAccount{}, err
	}
	return escrow, nil
}

func (s *EscrowService) Get(ctx context.Context, escrowID string) (models.EscrowAccount, error) {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EscrowAccount{}, ErrAccountNotFound
		}
		return models.EscrowAccount{}, err
	}
	return escrow, nil
}

// generateEscrowNumber draws short human-referenceable numbers and retries
// on collision against the unique index.
func (s *EscrowService) generateEscrowNumber(ctx context.Context, tx store.Getter) (string, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := fmt.Sprintf("ESC-%08d", rand.Intn(100000000))
		exists, err := s.escrows.NumberExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", errors.New("escrow number collision retry limit exceeded")
}

