package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soko/internal/auth"
	"soko/internal/config"
	"soko/internal/db"
	"soko/internal/middleware"
	"soko/internal/models"
	"soko/internal/services"
	"soko/internal/store"
	"soko/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn    func(ctx context.Context, email string) (models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (models.User, error)
	getByIDFn       func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	if s.getByUsernameFn == nil {
		return models.User{}, nil
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubAccountStore struct {
	reconcileFn func(ctx context.Context) ([]store.ReconcileRow, error)
}

func (s stubAccountStore) Reconcile(ctx context.Context) ([]store.ReconcileRow, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

type stubHistoryStore struct {
	listFn  func(ctx context.Context, ownerUserID string, entryType string, limit, offset int) ([]models.TransactionHistory, error)
	countFn func(ctx context.Context, ownerUserID string, entryType string) (int, error)
}

func (s stubHistoryStore) ListByOwner(ctx context.Context, ownerUserID string, entryType string, limit, offset int) ([]models.TransactionHistory, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, ownerUserID, entryType, limit, offset)
}

func (s stubHistoryStore) CountByOwner(ctx context.Context, ownerUserID string, entryType string) (int, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx, ownerUserID, entryType)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubWalletService struct {
	getOrCreateFn func(ctx context.Context, ownerUserID string) (models.Wallet, error)
	balanceFn     func(ctx context.Context, ownerUserID string) (services.WalletBalance, error)
	topupFn       func(ctx context.Context, req services.TopupRequest) (models.LedgerEntry, error)
	withdrawFn    func(ctx context.Context, req services.WithdrawRequest) (models.LedgerEntry, error)
	deactivateFn  func(ctx context.Context, ownerUserID, actorID, reason string) error
	reactivateFn  func(ctx context.Context, ownerUserID, actorID string) error
}

func (s stubWalletService) GetOrCreate(ctx context.Context, ownerUserID string) (models.Wallet, error) {
	if s.getOrCreateFn == nil {
		return models.Wallet{}, nil
	}
	return s.getOrCreateFn(ctx, ownerUserID)
}

func (s stubWalletService) Balance(ctx context.Context, ownerUserID string) (services.WalletBalance, error) {
	if s.balanceFn == nil {
		return services.WalletBalance{}, nil
	}
	return s.balanceFn(ctx, ownerUserID)
}

func (s stubWalletService) Topup(ctx context.Context, req services.TopupRequest) (models.LedgerEntry, error) {
	if s.topupFn == nil {
		return models.LedgerEntry{}, nil
	}
	return s.topupFn(ctx, req)
}

func (s stubWalletService) Withdraw(ctx context.Context, req services.WithdrawRequest) (models.LedgerEntry, error) {
	if s.withdrawFn == nil {
		return models.LedgerEntry{}, nil
	}
	return s.withdrawFn(ctx, req)
}

func (s stubWalletService) Deactivate(ctx context.Context, ownerUserID, actorID, reason string) error {
	if s.deactivateFn == nil {
		return nil
	}
	return s.deactivateFn(ctx, ownerUserID, actorID, reason)
}

func (s stubWalletService) Reactivate(ctx context.Context, ownerUserID, actorID string) error {
	if s.reactivateFn == nil {
		return nil
	}
	return s.reactivateFn(ctx, ownerUserID, actorID)
}

type stubEscrowService struct {
	holdFn    func(ctx context.Context, req services.HoldRequest) (models.EscrowAccount, error)
	releaseFn func(ctx context.Context, escrowID string, feePercent decimal.Decimal, actorID string) (models.EscrowAccount, error)
	refundFn  func(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error)
	disputeFn func(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error)
	getFn     func(ctx context.Context, escrowID string) (models.EscrowAccount, error)
}

func (s stubEscrowService) Hold(ctx context.Context, req services.HoldRequest) (models.EscrowAccount, error) {
	if s.holdFn == nil {
		return models.EscrowAccount{}, nil
	}
	return s.holdFn(ctx, req)
}

func (s stubEscrowService) Release(ctx context.Context, escrowID string, feePercent decimal.Decimal, actorID string) (models.EscrowAccount, error) {
	if s.releaseFn == nil {
		return models.EscrowAccount{}, nil
	}
	return s.releaseFn(ctx, escrowID, feePercent, actorID)
}

func (s stubEscrowService) Refund(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error) {
	if s.refundFn == nil {
		return models.EscrowAccount{}, nil
	}
	return s.refundFn(ctx, escrowID, actorID)
}

func (s stubEscrowService) Dispute(ctx context.Context, escrowID, actorID string) (models.EscrowAccount, error) {
	if s.disputeFn == nil {
		return models.EscrowAccount{}, nil
	}
	return s.disputeFn(ctx, escrowID, actorID)
}

func (s stubEscrowService) Get(ctx context.Context, escrowID string) (models.EscrowAccount, error) {
	if s.getFn == nil {
		return models.EscrowAccount{}, nil
	}
	return s.getFn(ctx, escrowID)
}

func newTestHandler(txRunner db.TxRunner, users UserStore, accounts AccountStore, history HistoryStore, admin AdminStore, audit AuditStore, wallets WalletService, escrows EscrowService) *Handler {
	cfg := config.Config{
		AppEnv:             "test",
		Port:               "0",
		JWTSecret:          "secret",
		TokenTTL:           time.Minute,
		AllowedOrigins:     "*",
		DefaultCurrency:    "TZS",
		PlatformFeePercent: "10",
	}
	return New(txRunner, cfg, users, accounts, history, admin, audit, wallets, escrows, websocket.NewHub())
}

func serveWithAuth(t *testing.T, handler http.HandlerFunc, userID string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr := httptest.NewRecorder()
	req.Header.Set("Authorization", "Bearer "+token)
	middleware.Auth("secret")(handler).ServeHTTP(rr, req)
	return rr
}
