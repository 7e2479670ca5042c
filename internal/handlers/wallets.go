package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"soko/internal/auth"
	"soko/internal/middleware"
	"soko/internal/services"
	"soko/internal/websocket"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balance, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_id": balance.WalletID,
		"balance":   formatMoney(balance.AmountMinor),
		"currency":  balance.Currency,
		"is_active": balance.IsActive,
	})
}

type walletMoveRequest struct {
	Amount          string  `json:"amount"`
	Description     string  `json:"description"`
	ClientRequestID *string `json:"client_request_id"`
}

func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req walletMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	entry, err := h.wallets.Topup(r.Context(), services.TopupRequest{
		OwnerUserID:     userID,
		AmountMinor:     amountMinor,
		Description:     req.Description,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"transaction_ref": entry.TransactionRef,
		"amount":          formatMoney(entry.Amount),
		"currency":        entry.Currency,
	})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req walletMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	entry, err := h.wallets.Withdraw(r.Context(), services.WithdrawRequest{
		OwnerUserID:     userID,
		AmountMinor:     amountMinor,
		Description:     req.Description,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"transaction_ref": entry.TransactionRef,
		"amount":          formatMoney(entry.Amount),
		"currency":        entry.Currency,
	})
}

// WSWallet authenticates via a token query parameter because browsers cannot
// set Authorization headers on websocket upgrades.
func (h *Handler) WSWallet(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

func respondWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case errors.Is(err, services.ErrWalletInactive):
		respondError(w, http.StatusForbidden, "wallet_inactive")
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrCurrencyMismatch):
		respondError(w, http.StatusBadRequest, "currency_mismatch")
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found")
	default:
		respondError(w, http.StatusInternalServerError, "wallet_operation_failed")
	}
}
