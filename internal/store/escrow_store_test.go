package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"soko/internal/models"
)

func TestEscrowStoreCreate(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO escrow_accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 10 || args[1] != "ESC-00000042" || args[9] != models.EscrowHeld {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewEscrowStore(stubDB{})
	err := store.Create(context.Background(), execer, models.EscrowAccount{
		ID: "esc-1", EscrowNumber: "ESC-00000042", CheckoutSessionID: "cs-1",
		SessionDomain: models.SessionProduct, LedgerAccountID: "acct-1",
		BuyerUserID: "buyer-1", SellerUserID: "seller-1", Amount: 3000,
		Currency: "TZS", Status: models.EscrowHeld,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEscrowStoreFindOpenBySession(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "status IN ('HELD', 'DISPUTED')") {
				t.Fatalf("open lookup must exclude terminal escrows: %s", query)
			}
			if args[0] != "cs-1" || args[1] != models.SessionProduct {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*models.EscrowAccount) = models.EscrowAccount{ID: "esc-1", Status: models.EscrowHeld}
			return nil
		},
	}
	store := NewEscrowStore(stubDB{})
	escrow, err := store.FindOpenBySession(context.Background(), getter, "cs-1", models.SessionProduct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escrow.ID != "esc-1" {
		t.Fatalf("unexpected escrow: %#v", escrow)
	}
}

func TestEscrowStoreMarkReleasedGuardsStatus(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'RELEASED'") || !strings.Contains(query, "status IN ('HELD', 'DISPUTED')") {
				t.Fatalf("unexpected query: %s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewEscrowStore(stubDB{})
	rows, err := store.MarkReleased(context.Background(), execer, "esc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row affected, got %d", rows)
	}
}

func TestEscrowStoreMarkReleasedAlreadyTerminal(t *testing.T) {
	execer := stubExecer{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	store := NewEscrowStore(stubDB{})
	rows, err := store.MarkReleased(context.Background(), execer, "esc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows affected, got %d", rows)
	}
}

func TestEscrowStoreMarkDisputedOnlyFromHeld(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'DISPUTED'") || !strings.Contains(query, "status = 'HELD'") {
				t.Fatalf("unexpected query: %s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewEscrowStore(stubDB{})
	if _, err := store.MarkDisputed(context.Background(), execer, "esc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEscrowStoreNumberExists(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if args[0] != "ESC-00000042" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int) = 1
			return nil
		},
	}
	store := NewEscrowStore(stubDB{})
	exists, err := store.NumberExists(context.Background(), getter, "ESC-00000042")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected number to exist")
	}
}
