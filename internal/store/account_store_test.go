package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"soko/internal/models"
)

func TestAccountStoreCreate(t *testing.T) {
	owner := "user-1"
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO ledger_accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != "acct-1" || args[1] != models.AccountUserWallet || args[4] != int64(0) {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	err := store.Create(context.Background(), execer, models.LedgerAccount{
		ID: "acct-1", Type: models.AccountUserWallet, OwnerUserID: &owner, Currency: "TZS",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreGetForUpdateLocksRow(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row lock in query: %s", query)
			}
			*dest.(*models.LedgerAccount) = models.LedgerAccount{ID: args[0].(string), Balance: 500}
			return nil
		},
	}
	store := NewAccountStore(stubDB{})
	account, err := store.GetForUpdate(context.Background(), getter, "acct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != "acct-1" || account.Balance != 500 {
		t.Fatalf("unexpected account: %#v", account)
	}
}

func TestAccountStoreUpdateBalance(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "UPDATE ledger_accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != int64(2500) || args[1] != "acct-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	if err := store.UpdateBalance(context.Background(), execer, "acct-1", 2500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreGetPlatformAccount(t *testing.T) {
	store := NewAccountStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "owner_user_id IS NULL") {
				t.Fatalf("platform lookup must exclude owned accounts: %s", query)
			}
			if args[0] != models.AccountExternalMoneyIn || args[1] != "TZS" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*string) = "ext-in"
			return nil
		},
	})
	id, err := store.GetPlatformAccount(context.Background(), models.AccountExternalMoneyIn, "TZS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ext-in" {
		t.Fatalf("unexpected id: %s", id)
	}
}

func TestAccountStoreReconcile(t *testing.T) {
	store := NewAccountStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, _ ...any) error {
			if !strings.Contains(query, "journal_balance") || !strings.Contains(query, "difference") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]ReconcileRow) = []ReconcileRow{
				{ID: "acct-1", StoredBalance: 1000, JournalBalance: 1000, Difference: 0},
				{ID: "acct-2", StoredBalance: 900, JournalBalance: 1000, Difference: -100},
			}
			return nil
		},
	})
	rows, err := store.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1].Difference != -100 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
