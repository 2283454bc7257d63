/**
 * @description
 * This file contains the HTTP handler functions for the operator surface.
 * Handlers parse incoming requests, call the store and policy engine, and
 * write JSON responses. Credential group payloads never include token
 * material; the ciphertext field is excluded at the model level.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/app"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/store"
)

// SyncTrigger starts an out-of-band sync tick.
type SyncTrigger interface {
	TriggerNow()
}

// Handler holds the dependencies the operator handlers interact with.
type Handler struct {
	repo     store.Repository
	policies *app.PolicyEngine
	trigger  SyncTrigger
	cipher   *domain.TokenCipher
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, policies *app.PolicyEngine, trigger SyncTrigger, cipher *domain.TokenCipher, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, policies: policies, trigger: trigger, cipher: cipher, logger: logger}
}

// credentialGroupStatus is one /sync/status row. The token appears only in
// its masked display form so operators can tell credentials apart.
type credentialGroupStatus struct {
	domain.CredentialGroup
	MaskedToken string `json:"masked_token,omitempty"`
}

// handleSyncStatus returns every credential group with its last sync outcome.
func (h *Handler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	groups, err := h.repo.ListCredentialGroups(r.Context())
	if err != nil {
		h.logger.Error("failed to list credential groups", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	statuses := make([]credentialGroupStatus, 0, len(groups))
	for _, g := range groups {
		entry := credentialGroupStatus{CredentialGroup: g}
		// A group whose ciphertext no longer decrypts still lists; the sync
		// status column already carries its error state.
		if token, decErr := h.cipher.Decrypt(g.APITokenCiphertext); decErr == nil {
			entry.MaskedToken = domain.MaskToken(token)
		}
		statuses = append(statuses, entry)
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"credential_groups": statuses})
}

// handleSyncRun triggers an immediate sync tick. The tick runs asynchronously;
// a tick already in flight absorbs the request.
func (h *Handler) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	h.trigger.TriggerNow()
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleListTransactions lists an account's transactions, optionally filtered
// by ?status=pending,posted. Asking for either completed status returns both.
func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	statuses := []string{
		domain.TransactionStatusPending,
		domain.TransactionStatusPosted,
		domain.TransactionStatusCancelled,
		domain.TransactionStatusFailed,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}

	txs, err := h.repo.ListTransactionsByStatus(r.Context(), accountID, statuses)
	if err != nil {
		h.logger.Error("failed to list transactions", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// handleGetReceiptPolicy returns the policy in effect for an account at a
// point in time (?at=RFC3339, default now).
func (h *Handler) handleGetReceiptPolicy(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid 'at' timestamp; expected RFC3339", http.StatusBadRequest)
			return
		}
		at = parsed
	}

	policy, err := h.repo.GetEffectivePolicy(r.Context(), accountID, at)
	if err != nil {
		h.logger.Error("failed to load effective policy", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if policy == nil {
		http.Error(w, "No receipt policy covers this account at the requested time", http.StatusNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}

// handleReceiptPolicyHistory returns the full policy history of an account.
func (h *Handler) handleReceiptPolicyHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	policies, err := h.repo.ListReceiptPolicies(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to list receipt policies", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
}

// handleSetReceiptPolicy records a policy change, immediate or scheduled.
func (h *Handler) handleSetReceiptPolicy(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req struct {
		Rules       domain.PolicyRules `json:"rules"`
		EffectiveAt *time.Time         `json:"effective_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !validRuleKind(req.Rules.Deposits.Kind) || !validRuleKind(req.Rules.Charges.Kind) {
		http.Error(w, "Rule kind must be one of: none, always, threshold", http.StatusBadRequest)
		return
	}

	if _, err := h.repo.GetAccount(r.Context(), accountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load account", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := h.policies.ApplyChange(r.Context(), accountID, req.Rules, req.EffectiveAt); err != nil {
		if errors.Is(err, app.ErrPastEffectiveDate) {
			http.Error(w, "Effective date must not be in the past", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to apply policy change", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// handleMonthlyReport returns monthly deposit/charge totals over a window
// (?from=, ?to= as RFC3339; default the trailing twelve months).
func (h *Handler) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	totals, err := h.repo.MonthlyTotals(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to compute monthly totals", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"months": totals})
}

// handleAccountSummaries returns per-account activity over a window
// (?from=, ?to= as RFC3339; default the trailing twelve months).
func (h *Handler) handleAccountSummaries(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, err := h.repo.AccountSummaries(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to compute account summaries", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"accounts": summaries})
}

// reportWindow parses the shared from/to query params of the report routes.
func reportWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(-1, 0, 0)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errors.New("invalid 'from' timestamp; expected RFC3339")
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errors.New("invalid 'to' timestamp; expected RFC3339")
		}
		to = parsed
	}
	return from, to, nil
}

func validRuleKind(kind string) bool {
	switch kind {
	case domain.ReceiptRuleNone, domain.ReceiptRuleAlways, domain.ReceiptRuleThreshold:
		return true
	}
	return false
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
