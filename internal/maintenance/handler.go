package maintenance

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"careerhero-api/internal/auth"
	"careerhero-api/internal/observability"
)

// Handler serves the operator endpoints behind the CRON_SECRET bearer. With
// no secret configured the routes answer 404 so the surface stays invisible.
type Handler struct {
	vault      *auth.Vault
	ledger     *auth.Ledger
	metrics    *observability.MetricsTracker
	logger     *observability.Logger
	cronSecret string
}

func NewHandler(
	vault *auth.Vault,
	ledger *auth.Ledger,
	metrics *observability.MetricsTracker,
	logger *observability.Logger,
	cronSecret string,
) *Handler {
	return &Handler{
		vault:      vault,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return false
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return false
	}

	return true
}

type disableAccountRequest struct {
	Username string `json:"username"`
}

// DisableAccount deactivates an account and revokes its live sessions. Rows
// are kept; deactivation plus revocation is the complete disable path.
func (h *Handler) DisableAccount(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var body disableAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Username) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	account, err := h.vault.FindByUsername(r.Context(), body.Username)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
			return
		}
		h.logger.Error("account_disable_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "account disable failed"})
		return
	}

	if err := h.vault.SetActive(r.Context(), account.ID, false); err != nil {
		h.logger.Error("account_disable_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "account disable failed"})
		return
	}

	revoked, err := h.ledger.RevokeAll(r.Context(), account.ID)
	if err != nil {
		h.logger.Error("account_disable_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "account disable failed"})
		return
	}

	h.logger.Info("account_disabled", map[string]any{
		"username":         account.Username,
		"revoked_sessions": revoked,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"username":        account.Username,
		"revokedSessions": revoked,
	})
}

// Metrics returns the in-process request counters and latency summaries.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
