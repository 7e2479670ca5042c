package handlers

import (
	"context"

	"soko/internal/models"
	"soko/internal/services"
	"soko/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type AccountStore interface {
	Reconcile(ctx context.Context) ([]store.ReconcileRow, error)
}

type HistoryStore interface {
	ListByOwner(ctx context.Context, ownerUserID string, entryType string, limit, offset int) ([]models.TransactionHistory, error)
	CountByOwner(ctx context.Context, ownerUserID string, entryType string) (int, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type WalletService interface {
	GetOrCreate(ctx context.Context, ownerUserID string) (models.Wallet, error)
	Balance(ctx context.Context, ownerUserID string) (services.WalletBalance, error)
	Topup(ctx context.Context, req services.TopupRequest) (models.LedgerEntry, error)
	Withdraw(ctx context.Context, req services.WithdrawRequest) (models.LedgerEntry, error)
	Deactivate(ctx context.Context, ownerUserID, actorID, reason string) error
	Reactivate(ctx context.Context, ownerUserID, actorID string) error
}

type EscrowService interface {
	Hold(ctx context.Context, req services.HoldRequest) (models.EscrowAccount, error)
	Release(ctx context.Context, escrowID string, feePercent decimal.Decimal, actorID string) (models.EscrowAccount, error)
	Refund(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error)
	Dispute(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error)
	Get(ctx context.Context, escrowID string) (models.EscrowAccount, error)
}
