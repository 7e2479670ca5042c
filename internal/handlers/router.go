package handlers

import (
	"net/http"

	"soko/internal/config"
	"soko/internal/db"
	"soko/internal/middleware"
	"soko/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	users    UserStore
	accounts AccountStore
	history  HistoryStore
	admin    AdminStore
	audit    AuditStore
	wallets  WalletService
	escrows  EscrowService
	hub      *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, accounts AccountStore, history HistoryStore, admin AdminStore, audit AuditStore, wallets WalletService, escrows EscrowService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner: txRunner,
		cfg:      cfg,
		users:    users,
		accounts: accounts,
		history:  history,
		admin:    admin,
		audit:    audit,
		wallets:  wallets,
		escrows:  escrows,
		hub:      hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/wallet", h.GetWallet)
		r.Post("/wallet/topup", h.Topup)
		r.Post("/wallet/withdraw", h.Withdraw)
		r.Get("/transactions", h.ListTransactions)
		r.Post("/escrows/hold", h.Hold)
		r.Get("/escrows/{id}", h.GetEscrow)
		r.Post("/escrows/{id}/release", h.Release)
		r.Post("/escrows/{id}/refund", h.Refund)
		r.Post("/escrows/{id}/dispute", h.Dispute)
	})

	router.Get("/ws/wallet", h.WSWallet)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, "CanViewLedger")).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, "CanViewLedger")).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "CanManageWallets")).Post("/wallets/{owner}/deactivate", h.DeactivateWallet)
		r.With(middleware.RequireAdmin(h.admin, "CanManageWallets")).Post("/wallets/{owner}/activate", h.ActivateWallet)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
