package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"soko/internal/middleware"
	"soko/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.accounts.Reconcile(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	accounts := make([]map[string]any, 0, len(rows))
	drift := 0
	for _, row := range rows {
		if row.Difference != 0 {
			drift++
		}
		accounts = append(accounts, map[string]any{
			"account_id":      row.ID,
			"type":            row.Type,
			"currency":        row.Currency,
			"stored_balance":  formatMoney(row.StoredBalance),
			"journal_balance": formatMoney(row.JournalBalance),
			"difference":      formatMoney(row.Difference),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts":       accounts,
		"accounts_total": len(rows),
		"drift_count":    drift,
		"balanced":       drift == 0,
	})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs, "limit": limit, "offset": offset})
}

type deactivateWalletRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) DeactivateWallet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ownerID, err := h.resolveUserID(r, chi.URLParam(r, "owner"))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	var req deactivateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := h.wallets.Deactivate(r.Context(), ownerID, actorID, req.Reason); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to deactivate wallet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "owner_user_id": ownerID})
}

func (h *Handler) ActivateWallet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ownerID, err := h.resolveUserID(r, chi.URLParam(r, "owner"))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := h.wallets.Reactivate(r.Context(), ownerID, actorID); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to activate wallet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "active", "owner_user_id": ownerID})
}

type promoteRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsSuper  bool   `json:"is_super"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.isSuperAdmin(r, actorID) {
		respondError(w, http.StatusForbidden, "super admin required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	targetID, err := h.resolveTarget(r, req.UserID, req.Username)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, targetID, req.IsSuper, &actorID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, actorID, "admin_promote", "user", targetID, "{}")
	})
	if err != nil {
		respondError(w, http.StatusConflict, "unable to promote user")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"user_id": targetID, "is_super": req.IsSuper})
}

type grantRoleRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.isSuperAdmin(r, actorID) {
		respondError(w, http.StatusForbidden, "super admin required")
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Role == "" {
		respondError(w, http.StatusBadRequest, "role is required")
		return
	}
	targetID, err := h.resolveTarget(r, req.UserID, req.Username)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	isAdmin, _, err := h.admin.IsAdmin(r.Context(), targetID)
	if err != nil || !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, targetID, req.Role); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, actorID, "admin_grant_role", "user", targetID, `{"role":"`+req.Role+`"}`)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"user_id": targetID, "role": req.Role})
}

func (h *Handler) isSuperAdmin(r *http.Request, userID string) bool {
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	return err == nil && isSuper
}

// resolveUserID accepts either a user id or a username in URL parameters so
// operators can address wallets by the handle they see in support tickets.
func (h *Handler) resolveUserID(r *http.Request, raw string) (string, error) {
	if raw == "" {
		return "", sql.ErrNoRows
	}
	if user, err := h.users.GetByID(r.Context(), raw); err == nil {
		return user.ID, nil
	}
	user, err := h.users.GetByUsername(r.Context(), raw)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (h *Handler) resolveTarget(r *http.Request, userID, username string) (string, error) {
	if userID != "" {
		user, err := h.users.GetByID(r.Context(), userID)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
	if username == "" {
		return "", sql.ErrNoRows
	}
	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
