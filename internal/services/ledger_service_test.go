package services

import (
	"context"
	"database/sql"
	"testing"

	"soko/internal/models"
	"soko/internal/store"
	"soko/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubAccountStore struct {
	createFn             func(ctx context.Context, tx store.Execer, account models.LedgerAccount) error
	getByIDFn            func(ctx context.Context, accountID string) (models.LedgerAccount, error)
	getForUpdateFn       func(ctx context.Context, tx store.Getter, accountID string) (models.LedgerAccount, error)
	updateBalanceFn      func(ctx context.Context, tx store.Execer, accountID string, balance int64) error
	getPlatformAccountFn func(ctx context.Context, accountType models.AccountType, currency string) (string, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, account models.LedgerAccount) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, account)
}

func (s stubAccountStore) GetByID(ctx context.Context, accountID string) (models.LedgerAccount, error) {
	if s.getByIDFn == nil {
		return models.LedgerAccount{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, accountID)
}

func (s stubAccountStore) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.LedgerAccount, error) {
	return s.getForUpdateFn(ctx, tx, accountID)
}

func (s stubAccountStore) UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error {
	if s.updateBalanceFn == nil {
		return nil
	}
	return s.updateBalanceFn(ctx, tx, accountID, balance)
}

func (s stubAccountStore) GetPlatformAccount(ctx context.Context, accountType models.AccountType, currency string) (string, error) {
	if s.getPlatformAccountFn == nil {
		return "", sql.ErrNoRows
	}
	return s.getPlatformAccountFn(ctx, accountType, currency)
}

type stubEntryStore struct {
	insertFn   func(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	getByRefFn func(ctx context.Context, tx store.Getter, transactionRef string) (models.LedgerEntry, error)
}

func (s stubEntryStore) Insert(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, entry)
}

func (s stubEntryStore) GetByTransactionRef(ctx context.Context, tx store.Getter, transactionRef string) (models.LedgerEntry, error) {
	if s.getByRefFn == nil {
		return models.LedgerEntry{}, sql.ErrNoRows
	}
	return s.getByRefFn(ctx, tx, transactionRef)
}

type stubHistoryStore struct {
	insertFn func(ctx context.Context, tx store.Execer, rows []models.TransactionHistory) error
}

func (s stubHistoryStore) Insert(ctx context.Context, tx store.Execer, rows []models.TransactionHistory) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, rows)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type stubHub struct {
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.calls = append(s.calls, update)
}

func stringPtr(value string) *string {
	return &value
}

func pairAccounts(debit, credit models.LedgerAccount) stubAccountStore {
	return stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, accountID string) (models.LedgerAccount, error) {
			if accountID == debit.ID {
				return debit, nil
			}
			if accountID == credit.ID {
				return credit, nil
			}
			return models.LedgerAccount{}, sql.ErrNoRows
		},
	}
}

func TestApplyEntryInvalidAmount(t *testing.T) {
	service := NewLedgerService(stubAccountStore{}, stubEntryStore{}, stubHistoryStore{})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "a", CreditAccountID: "b", Amount: 0,
	})
	if err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestApplyEntrySameAccount(t *testing.T) {
	service := NewLedgerService(stubAccountStore{}, stubEntryStore{}, stubHistoryStore{})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "a", CreditAccountID: "a", Amount: 100,
	})
	if err != ErrSameAccount {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}
}

func TestApplyEntryIdempotentOnTransactionRef(t *testing.T) {
	existing := models.LedgerEntry{ID: "entry-1", TransactionRef: "ref-1", Amount: 500}
	service := NewLedgerService(stubAccountStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.LedgerAccount, error) {
			t.Fatalf("accounts must not be locked on a replayed ref")
			return models.LedgerAccount{}, nil
		},
	}, stubEntryStore{
		getByRefFn: func(_ context.Context, _ store.Getter, ref string) (models.LedgerEntry, error) {
			if ref != "ref-1" {
				t.Fatalf("unexpected ref: %s", ref)
			}
			return existing, nil
		},
	}, stubHistoryStore{})

	entry, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "a", CreditAccountID: "b", Amount: 500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != "entry-1" {
		t.Fatalf("expected the committed entry back, got %#v", entry)
	}
}

func TestApplyEntryCurrencyMismatch(t *testing.T) {
	accounts := pairAccounts(
		models.LedgerAccount{ID: "a", Type: models.AccountUserWallet, Currency: "TZS", Balance: 10000},
		models.LedgerAccount{ID: "b", Type: models.AccountUserWallet, Currency: "USD", Balance: 0},
	)
	service := NewLedgerService(accounts, stubEntryStore{}, stubHistoryStore{})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "a", CreditAccountID: "b", Amount: 100,
	})
	if err != ErrCurrencyMismatch {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestApplyEntryInsufficientBalance(t *testing.T) {
	accounts := pairAccounts(
		models.LedgerAccount{ID: "a", Type: models.AccountUserWallet, Currency: "TZS", Balance: 500},
		models.LedgerAccount{ID: "b", Type: models.AccountEscrow, Currency: "TZS", Balance: 0},
	)
	service := NewLedgerService(accounts, stubEntryStore{}, stubHistoryStore{})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "a", CreditAccountID: "b", Amount: 1000,
	})
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestApplyEntryExternalAccountMayGoNegative(t *testing.T) {
	var updates = map[string]int64{}
	accounts := pairAccounts(
		models.LedgerAccount{ID: "ext-in", Type: models.AccountExternalMoneyIn, Currency: "TZS", Balance: 0},
		models.LedgerAccount{ID: "wallet", Type: models.AccountUserWallet, Currency: "TZS", Balance: 200},
	)
	accounts.updateBalanceFn = func(_ context.Context, _ store.Execer, accountID string, balance int64) error {
		updates[accountID] = balance
		return nil
	}
	service := NewLedgerService(accounts, stubEntryStore{}, stubHistoryStore{})
	entry, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "ext-in", CreditAccountID: "wallet", Amount: 1000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Amount != 1000 || entry.Currency != "TZS" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if updates["ext-in"] != -1000 || updates["wallet"] != 1200 {
		t.Fatalf("unexpected balances: %#v", updates)
	}
}

func TestApplyEntryHistoryOnlyForOwnedAccounts(t *testing.T) {
	var recorded []models.TransactionHistory
	accounts := pairAccounts(
		models.LedgerAccount{ID: "wallet", Type: models.AccountUserWallet, OwnerUserID: stringPtr("user-1"), Currency: "TZS", Balance: 5000},
		models.LedgerAccount{ID: "escrow", Type: models.AccountEscrow, Currency: "TZS", Balance: 0},
	)
	service := NewLedgerService(accounts, stubEntryStore{}, stubHistoryStore{
		insertFn: func(_ context.Context, _ store.Execer, rows []models.TransactionHistory) error {
			recorded = rows
			return nil
		},
	})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "wallet", CreditAccountID: "escrow",
		Amount: 3000, EntryType: models.EntryPurchase,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(recorded))
	}
	row := recorded[0]
	if row.AccountOwner != "user-1" || row.Direction != models.DirectionDebit {
		t.Fatalf("unexpected history row: %#v", row)
	}
	if row.DisplayAmount() != -3000 {
		t.Fatalf("expected display amount -3000, got %d", row.DisplayAmount())
	}
}

func TestApplyEntryLocksAccountsInOrder(t *testing.T) {
	var lockOrder []string
	service := NewLedgerService(stubAccountStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, accountID string) (models.LedgerAccount, error) {
			lockOrder = append(lockOrder, accountID)
			if accountID == "zz" {
				return models.LedgerAccount{ID: "zz", Type: models.AccountExternalMoneyIn, Currency: "TZS"}, nil
			}
			return models.LedgerAccount{ID: "aa", Type: models.AccountUserWallet, Currency: "TZS", Balance: 1000}, nil
		},
	}, stubEntryStore{}, stubHistoryStore{})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "zz", CreditAccountID: "aa", Amount: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lockOrder) != 2 || lockOrder[0] != "aa" || lockOrder[1] != "zz" {
		t.Fatalf("expected ascending lock order, got %v", lockOrder)
	}
}

func TestApplyEntryUnknownAccount(t *testing.T) {
	service := NewLedgerService(stubAccountStore{
		getForUpdateFn: func(context.Context, store.Getter, string) (models.LedgerAccount, error) {
			return models.LedgerAccount{}, sql.ErrNoRows
		},
	}, stubEntryStore{}, stubHistoryStore{})
	_, err := service.ApplyEntry(context.Background(), nil, ApplyEntryInput{
		TransactionRef: "ref-1", DebitAccountID: "a", CreditAccountID: "b", Amount: 100,
	})
	if err != ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
