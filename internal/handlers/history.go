package handlers

import (
	"net/http"
	"strconv"

	"soko/internal/middleware"
	"soko/internal/models"
)

const maxHistoryPageSize = 100

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entryType := r.URL.Query().Get("type")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxHistoryPageSize {
		limit = 20
	}
	offset := (page - 1) * limit

	rows, err := h.history.ListByOwner(r.Context(), userID, entryType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	total, err := h.history.CountByOwner(r.Context(), userID, entryType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}

	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, historyItem(row))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transactions": items,
		"page":         page,
		"limit":        limit,
		"total":        total,
	})
}

func historyItem(row models.TransactionHistory) map[string]any {
	return map[string]any{
		"id":              row.ID,
		"transaction_ref": row.TransactionRef,
		"entry_type":      row.EntryType,
		"direction":       row.Direction,
		"amount":          formatMoney(row.DisplayAmount()),
		"currency":        row.Currency,
		"title":           row.Title,
		"description":     row.Description,
		"reference_type":  row.ReferenceType,
		"reference_id":    row.ReferenceID,
		"status":          row.Status,
		"created_at":      row.CreatedAt,
	}
}
