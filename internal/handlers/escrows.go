package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"soko/internal/middleware"
	"soko/internal/models"
	"soko/internal/services"

	"github.com/go-chi/chi/v5"
)

type holdRequest struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	SessionDomain     string `json:"session_domain"`
	SellerUserID      string `json:"seller_user_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
}

func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CheckoutSessionID == "" || req.SellerUserID == "" {
		respondError(w, http.StatusBadRequest, "checkout_session_id and seller_user_id are required")
		return
	}
	domain := models.SessionDomain(req.SessionDomain)
	if domain != models.SessionProduct && domain != models.SessionEvent {
		respondError(w, http.StatusBadRequest, "session_domain must be PRODUCT or EVENT")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.cfg.DefaultCurrency
	}
	escrow, err := h.escrows.Hold(r.Context(), services.HoldRequest{
		CheckoutSessionID: req.CheckoutSessionID,
		SessionDomain:     domain,
		BuyerUserID:       userID,
		SellerUserID:      req.SellerUserID,
		AmountMinor:       amountMinor,
		Currency:          currency,
	})
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, escrowResponse(escrow))
}

func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	escrow, err := h.escrows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	if escrow.BuyerUserID != userID && escrow.SellerUserID != userID && !h.isAdmin(r, userID) {
		respondError(w, http.StatusNotFound, "escrow not found")
		return
	}
	respondJSON(w, http.StatusOK, escrowResponse(escrow))
}

type releaseRequest struct {
	FeePercent *string `json:"fee_percent"`
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	escrowID := chi.URLParam(r, "id")
	escrow, err := h.escrows.Get(r.Context(), escrowID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	admin := h.isAdmin(r, userID)
	if escrow.BuyerUserID != userID && !admin {
		respondError(w, http.StatusForbidden, "only the buyer or an admin can release")
		return
	}

	feePercent, err := parseFeePercent(h.cfg.PlatformFeePercent)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "fee configuration invalid")
		return
	}
	var req releaseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	if req.FeePercent != nil {
		// Only admins may override the configured platform fee.
		if !admin {
			respondError(w, http.StatusForbidden, "fee_percent override requires admin")
			return
		}
		feePercent, err = parseFeePercent(*req.FeePercent)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid fee_percent")
			return
		}
	}

	released, err := h.escrows.Release(r.Context(), escrowID, feePercent, userID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, escrowResponse(released))
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	escrowID := chi.URLParam(r, "id")
	escrow, err := h.escrows.Get(r.Context(), escrowID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	if escrow.SellerUserID != userID && !h.isAdmin(r, userID) {
		respondError(w, http.StatusForbidden, "only the seller or an admin can refund")
		return
	}
	refunded, err := h.escrows.Refund(r.Context(), escrowID, userID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, escrowResponse(refunded))
}

func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	escrowID := chi.URLParam(r, "id")
	escrow, err := h.escrows.Get(r.Context(), escrowID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	if escrow.BuyerUserID != userID {
		respondError(w, http.StatusForbidden, "only the buyer can dispute")
		return
	}
	disputed, err := h.escrows.Dispute(r.Context(), escrowID, userID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, escrowResponse(disputed))
}

func (h *Handler) isAdmin(r *http.Request, userID string) bool {
	isAdmin, _, err := h.admin.IsAdmin(r.Context(), userID)
	return err == nil && isAdmin
}

func escrowResponse(escrow models.EscrowAccount) map[string]any {
	resp := map[string]any{
		"id":                  escrow.ID,
		"escrow_number":       escrow.EscrowNumber,
		"checkout_session_id": escrow.CheckoutSessionID,
		"session_domain":      escrow.SessionDomain,
		"buyer_user_id":       escrow.BuyerUserID,
		"seller_user_id":      escrow.SellerUserID,
		"amount":              formatMoney(escrow.Amount),
		"currency":            escrow.Currency,
		"status":              escrow.Status,
		"created_at":          escrow.CreatedAt,
	}
	if escrow.ReleasedAt != nil {
		resp["released_at"] = escrow.ReleasedAt
	}
	if escrow.RefundedAt != nil {
		resp["refunded_at"] = escrow.RefundedAt
	}
	return resp
}

func respondEscrowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDuplicateEscrow):
		respondError(w, http.StatusConflict, "duplicate_escrow")
	case errors.Is(err, services.ErrInvalidEscrowState):
		respondError(w, http.StatusConflict, "invalid_escrow_state")
	case errors.Is(err, services.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case errors.Is(err, services.ErrWalletInactive):
		respondError(w, http.StatusForbidden, "wallet_inactive")
	case errors.Is(err, services.ErrCurrencyMismatch):
		respondError(w, http.StatusBadRequest, "currency_mismatch")
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "escrow not found")
	default:
		respondError(w, http.StatusInternalServerError, "escrow_operation_failed")
	}
}
