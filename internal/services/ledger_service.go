package services

import (
	"context"
	"database/sql"
	"errors"

	"soko/internal/models"
	"soko/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidEscrowState  = errors.New("invalid escrow state")
	ErrDuplicateEscrow     = errors.New("duplicate escrow for checkout session")
	ErrWalletInactive      = errors.New("wallet is deactivated")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSameAccount         = errors.New("debit and credit accounts must differ")
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, account models.LedgerAccount) error
	GetByID(ctx context.Context, accountID string) (models.LedgerAccount, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.LedgerAccount, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error
	GetPlatformAccount(ctx context.Context, accountType models.AccountType, currency string) (string, error)
}

type EntryStore interface {
	Insert(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	GetByTransactionRef(ctx context.Context, tx store.Getter, transactionRef string) (models.LedgerEntry, error)
}

type HistoryStore interface {
	Insert(ctx context.Context, tx store.Execer, rows []models.TransactionHistory) error
}

// LedgerService is the account balance updater: the only code path allowed
// to move money. Every call posts one paired entry, adjusts both stored
// balances under row locks, and projects history rows, all inside the
// caller's transaction.
type LedgerService struct {
	accounts AccountStore
	entries  EntryStore
	history  HistoryStore
}

func NewLedgerService(accounts AccountStore, entries EntryStore, history HistoryStore) *LedgerService {
	return &LedgerService{accounts: accounts, entries: entries, history: history}
}

type ApplyEntryInput struct {
	TransactionRef  string
	DebitAccountID  string
	CreditAccountID string
	Amount          int64
	Currency        string
	EntryType       models.EntryType
	ReferenceType   string
	ReferenceID     string
	Title           string
	Description     string
}

// ApplyEntry posts one debit/credit pair. It is idempotent on
// TransactionRef: a retried call finds the committed entry and returns it
// without moving money again. Both accounts are locked FOR UPDATE in
// ascending id order so overlapping transfers cannot deadlock, and balances
// are re-read under the lock before the sufficiency check.
func (s *LedgerService) ApplyEntry(ctx context.Context, tx store.Tx, in ApplyEntryInput) (models.LedgerEntry, error) {
	if in.Amount <= 0 {
		return models.LedgerEntry{}, ErrInvalidAmount
	}
	if in.DebitAccountID == in.CreditAccountID {
		return models.LedgerEntry{}, ErrSameAccount
	}

	existing, err := s.entries.GetByTransactionRef(ctx, tx, in.TransactionRef)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, err
	}

	debit, credit, err := s.lockAccountPair(ctx, tx, in.DebitAccountID, in.CreditAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LedgerEntry{}, ErrAccountNotFound
		}
		return models.LedgerEntry{}, err
	}
	if debit.Currency != credit.Currency {
		return models.LedgerEntry{}, ErrCurrencyMismatch
	}
	if in.Currency != "" && in.Currency != debit.Currency {
		return models.LedgerEntry{}, ErrCurrencyMismatch
	}
	if debit.Balance < in.Amount && !debit.Type.MayGoNegative() {
		return models.LedgerEntry{}, ErrInsufficientBalance
	}

	if err := s.accounts.UpdateBalance(ctx, tx, debit.ID, debit.Balance-in.Amount); err != nil {
		return models.LedgerEntry{}, err
	}
	if err := s.accounts.UpdateBalance(ctx, tx, credit.ID, credit.Balance+in.Amount); err != nil {
		return models.LedgerEntry{}, err
	}

	entry := models.LedgerEntry{
		ID:              uuid.NewString(),
		TransactionRef:  in.TransactionRef,
		DebitAccountID:  debit.ID,
		CreditAccountID: credit.ID,
		Amount:          in.Amount,
		Currency:        debit.Currency,
		EntryType:       in.EntryType,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
	}
	if err := s.entries.Insert(ctx, tx, entry); err != nil {
		return models.LedgerEntry{}, err
	}

	rows := historyRows(entry, debit, credit, in.Title, in.Description)
	if len(rows) > 0 {
		if err := s.history.Insert(ctx, tx, rows); err != nil {
			return models.LedgerEntry{}, err
		}
	}
	return entry, nil
}

func (s *LedgerService) lockAccountPair(ctx context.Context, tx store.Getter, debitID, creditID string) (models.LedgerAccount, models.LedgerAccount, error) {
	leftID, rightID := orderedIDs(debitID, creditID)
	left, err := s.accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return models.LedgerAccount{}, models.LedgerAccount{}, err
	}
	right, err := s.accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return models.LedgerAccount{}, models.LedgerAccount{}, err
	}
	if debitID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

// historyRows projects one history row per owned side of the entry. Platform
// and external accounts have no owner and get no row.
func historyRows(entry models.LedgerEntry, debit, credit models.LedgerAccount, title, description string) []models.TransactionHistory {
	if title == "" {
		title = defaultTitle(entry.EntryType)
	}
	var rows []models.TransactionHistory
	if debit.OwnerUserID != nil {
		rows = append(rows, models.TransactionHistory{
			ID:             uuid.NewString(),
			TransactionRef: entry.TransactionRef,
			AccountOwner:   *debit.OwnerUserID,
			EntryType:      entry.EntryType,
			Direction:      models.DirectionDebit,
			Amount:         entry.Amount,
			Currency:       entry.Currency,
			Title:          title,
			Description:    description,
			ReferenceType:  entry.ReferenceType,
			ReferenceID:    entry.ReferenceID,
			Status:         "COMPLETED",
		})
	}
	if credit.OwnerUserID != nil {
		rows = append(rows, models.TransactionHistory{
			ID:             uuid.NewString(),
			TransactionRef: entry.TransactionRef,
			AccountOwner:   *credit.OwnerUserID,
			EntryType:      entry.EntryType,
			Direction:      models.DirectionCredit,
			Amount:         entry.Amount,
			Currency:       entry.Currency,
			Title:          title,
			Description:    description,
			ReferenceType:  entry.ReferenceType,
			ReferenceID:    entry.ReferenceID,
			Status:         "COMPLETED",
		})
	}
	return rows
}

func defaultTitle(entryType models.EntryType) string {
	switch entryType {
	case models.EntryWalletTopup:
		return "Wallet top-up"
	case models.EntryWalletWithdrawal:
		return "Wallet withdrawal"
	case models.EntryPurchase:
		return "Purchase payment held in escrow"
	case models.EntryEscrowRelease:
		return "Escrow release"
	case models.EntryRefund:
		return "Refund"
	case models.EntryDisputeRefund:
		return "Dispute refund"
	case models.EntryFeeCollection:
		return "Platform fee"
	case models.EntryInitialBalance:
		return "Opening balance"
	default:
		return string(entryType)
	}
}
