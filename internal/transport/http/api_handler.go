package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"studion-points-service/internal/app"
	"studion-points-service/internal/domain"
)

// APIHandler exposes the ledger to plain HTTP callers, e.g. the
// course-purchase flow that consumes getBalance and spend.
type APIHandler struct {
	ledger *app.LedgerService
	log    *logrus.Logger
}

func NewAPIHandler(ledger *app.LedgerService, log *logrus.Logger) *APIHandler {
	return &APIHandler{ledger: ledger, log: log}
}

// Balance handles GET /api/balance?accountId=…
func (h *APIHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing accountId")
		return
	}
	balance, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// History handles GET /api/ledger?accountId=…&kind=…&from=…&to=…&limit=…&offset=…
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := q.Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing accountId")
		return
	}

	filter := domain.HistoryFilter{Kind: domain.EntryKind(q.Get("kind"))}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		filter.To = t
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	entries, err := h.ledger.History(r.Context(), accountID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

type spendRequest struct {
	AccountID       string           `json:"accountId"`
	Kind            domain.EntryKind `json:"kind"`
	Amount          int              `json:"amount"`
	RelatedEntityID string           `json:"relatedEntityId"`
}

// Spend handles POST /api/spend for the course-purchase flow.
func (h *APIHandler) Spend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry, err := h.ledger.Spend(r.Context(), req.AccountID, req.Kind, req.Amount, req.RelatedEntityID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "insufficient balance",
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).Error("ledger request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
