package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"soko/internal/db"
	"soko/internal/models"
	"soko/internal/money"
	"soko/internal/store"
	"soko/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, wallet models.Wallet) error
	GetByOwner(ctx context.Context, ownerUserID string) (models.Wallet, error)
	GetByOwnerTx(ctx context.Context, tx store.Getter, ownerUserID string) (models.Wallet, error)
	TouchActivity(ctx context.Context, tx store.Execer, walletID string) error
	SetActive(ctx context.Context, tx store.Execer, ownerUserID string, active bool, actorID, reason *string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// EntryApplier is the balance updater seam. LedgerService is the only
// production implementation.
type EntryApplier interface {
	ApplyEntry(ctx context.Context, tx store.Tx, in ApplyEntryInput) (models.LedgerEntry, error)
}

// WalletService exposes the user-facing envelope around USER_WALLET ledger
// accounts. Wallets are created lazily on first use, one per owner.
type WalletService struct {
	txRunner db.TxRunner
	ledger   EntryApplier
	accounts AccountStore
	wallets  WalletStore
	audit    AuditStore
	hub      BalanceHub
	currency string
}

func NewWalletService(txRunner db.TxRunner, ledger EntryApplier, accounts AccountStore, wallets WalletStore, audit AuditStore, hub BalanceHub, currency string) *WalletService {
	return &WalletService{
		txRunner: txRunner,
		ledger:   ledger,
		accounts: accounts,
		wallets:  wallets,
		audit:    audit,
		hub:      hub,
		currency: currency,
	}
}

type WalletBalance struct {
	WalletID    string
	AmountMinor int64
	Currency    string
	IsActive    bool
}

// EnsureWalletTx returns the owner's wallet, creating it together with its
// backing ledger account on first use. Runs inside the caller's transaction
// so escrow holds can create buyer wallets atomically with the hold itself.
func (s *WalletService) EnsureWalletTx(ctx context.Context, tx store.Tx, ownerUserID string) (models.Wallet, error) {
	wallet, err := s.wallets.GetByOwnerTx(ctx, tx, ownerUserID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, err
	}
	ownerID := ownerUserID
	account := models.LedgerAccount{
		ID:          uuid.NewString(),
		Type:        models.AccountUserWallet,
		OwnerUserID: &ownerID,
		Currency:    s.currency,
		Balance:     0,
	}
	if err := s.accounts.Create(ctx, tx, account); err != nil {
		return models.Wallet{}, err
	}
	wallet = models.Wallet{
		ID:              uuid.NewString(),
		OwnerUserID:     ownerUserID,
		LedgerAccountID: account.ID,
		IsActive:        true,
	}
	if err := s.wallets.Create(ctx, tx, wallet); err != nil {
		return models.Wallet{}, err
	}
	return wallet, nil
}

func (s *WalletService) GetOrCreate(ctx context.Context, ownerUserID string) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var innerErr error
		wallet, innerErr = s.EnsureWalletTx(ctx, tx, ownerUserID)
		return innerErr
	})
	if err != nil {
		return models.Wallet{}, err
	}
	return wallet, nil
}

// Balance is a snapshot read; no locks are taken. An owner with no wallet
// yet reads as a zero balance rather than forcing a write on a read path.
func (s *WalletService) Balance(ctx context.Context, ownerUserID string) (WalletBalance, error) {
	wallet, err := s.wallets.GetByOwner(ctx, ownerUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WalletBalance{AmountMinor: 0, Currency: s.currency, IsActive: true}, nil
		}
		return WalletBalance{}, err
	}
	account, err := s.accounts.GetByID(ctx, wallet.LedgerAccountID)
	if err != nil {
		return WalletBalance{}, err
	}
	return WalletBalance{
		WalletID:    wallet.ID,
		AmountMinor: account.Balance,
		Currency:    account.Currency,
		IsActive:    wallet.IsActive,
	}, nil
}

type TopupRequest struct {
	OwnerUserID     string
	AmountMinor     int64
	Description     string
	ClientRequestID *string
}

// Topup moves money from the EXTERNAL_MONEY_IN boundary account into the
// owner's wallet. A deactivated wallet still accepts the credit; only
// debits are blocked by deactivation.
func (s *WalletService) Topup(ctx context.Context, req TopupRequest) (models.LedgerEntry, error) {
	if req.AmountMinor <= 0 {
		return models.LedgerEntry{}, ErrInvalidAmount
	}
	ref := transactionRef("TOPUP", req.ClientRequestID)
	var entry models.LedgerEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.EnsureWalletTx(ctx, tx, req.OwnerUserID)
		if err != nil {
			return err
		}
		externalIn, err := s.accounts.GetPlatformAccount(ctx, models.AccountExternalMoneyIn, s.currency)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}
		entry, err = s.ledger.ApplyEntry(ctx, tx, ApplyEntryInput{
			TransactionRef:  ref,
			DebitAccountID:  externalIn,
			CreditAccountID: wallet.LedgerAccountID,
			Amount:          req.AmountMinor,
			EntryType:       models.EntryWalletTopup,
			ReferenceType:   "WALLET",
			ReferenceID:     wallet.ID,
			Description:     req.Description,
		})
		if err != nil {
			return err
		}
		if err := s.wallets.TouchActivity(ctx, tx, wallet.ID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"transaction_ref": ref, "amount": money.FormatMinor(req.AmountMinor)})
		return s.audit.Log(ctx, tx, req.OwnerUserID, "wallet_topup", "wallet", wallet.ID, string(data))
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}
	s.NotifyBalance(ctx, req.OwnerUserID)
	return entry, nil
}

type WithdrawRequest struct {
	OwnerUserID     string
	AmountMinor     int64
	Description     string
	ClientRequestID *string
}

// Withdraw moves money out to the EXTERNAL_MONEY_OUT boundary account.
func (s *WalletService) Withdraw(ctx context.Context, req WithdrawRequest) (models.LedgerEntry, error) {
	if req.AmountMinor <= 0 {
		return models.LedgerEntry{}, ErrInvalidAmount
	}
	ref := transactionRef("WITHDRAW", req.ClientRequestID)
	var entry models.LedgerEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.GetByOwnerTx(ctx, tx, req.OwnerUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientBalance
			}
			return err
		}
		if !wallet.IsActive {
			return ErrWalletInactive
		}
		externalOut, err := s.accounts.GetPlatformAccount(ctx, models.AccountExternalMoneyOut, s.currency)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}
		entry, err = s.ledger.ApplyEntry(ctx, tx, ApplyEntryInput{
			TransactionRef:  ref,
			DebitAccountID:  wallet.LedgerAccountID,
			CreditAccountID: externalOut,
			Amount:          req.AmountMinor,
			EntryType:       models.EntryWalletWithdrawal,
			ReferenceType:   "WALLET",
			ReferenceID:     wallet.ID,
			Description:     req.Description,
		})
		if err != nil {
			return err
		}
		if err := s.wallets.TouchActivity(ctx, tx, wallet.ID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"transaction_ref": ref, "amount": money.FormatMinor(req.AmountMinor)})
		return s.audit.Log(ctx, tx, req.OwnerUserID, "wallet_withdraw", "wallet", wallet.ID, string(data))
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}
	s.NotifyBalance(ctx, req.OwnerUserID)
	return entry, nil
}

// Deactivate is metadata only: the ledger account and its balance are
// untouched, and incoming credits keep landing.
func (s *WalletService) Deactivate(ctx context.Context, ownerUserID, actorID, reason string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.wallets.SetActive(ctx, tx, ownerUserID, false, &actorID, &reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAccountNotFound
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		return s.audit.Log(ctx, tx, actorID, "wallet_deactivate", "wallet", ownerUserID, string(data))
	})
}

func (s *WalletService) Reactivate(ctx context.Context, ownerUserID, actorID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.wallets.SetActive(ctx, tx, ownerUserID, true, nil, nil)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAccountNotFound
		}
		return s.audit.Log(ctx, tx, actorID, "wallet_reactivate", "wallet", ownerUserID, "{}")
	})
}

// NotifyBalance pushes the owner's current balance to connected websocket
// clients. Called only after the mutating transaction has committed.
func (s *WalletService) NotifyBalance(ctx context.Context, ownerUserID string) {
	balance, err := s.Balance(ctx, ownerUserID)
	if err != nil {
		return
	}
	s.hub.BroadcastBalance(ownerUserID, websocket.BalanceUpdate{
		WalletID: balance.WalletID,
		Balance:  money.FormatMinor(balance.AmountMinor),
		Currency: balance.Currency,
	})
}

func transactionRef(prefix string, clientRequestID *string) string {
	if clientRequestID != nil && *clientRequestID != "" {
		return fmt.Sprintf("%s-%s", prefix, *clientRequestID)
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
