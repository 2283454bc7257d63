package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/app"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/store"
)

// stubStore overrides only the Repository methods the handlers under test
// reach; everything else panics through the embedded nil interface.
type stubStore struct {
	store.Repository

	groups   []domain.CredentialGroup
	account  *domain.Account
	policies []domain.ReceiptPolicy
	inserted []*domain.ReceiptPolicy
}

func (s *stubStore) ListCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error) {
	return s.groups, nil
}

func (s *stubStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if s.account == nil || s.account.ID != accountID {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *stubStore) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	return fn(s)
}

func (s *stubStore) GetEffectivePolicy(ctx context.Context, accountID string, at time.Time) (*domain.ReceiptPolicy, error) {
	for i := len(s.policies) - 1; i >= 0; i-- {
		p := s.policies[i]
		if p.AccountID == accountID && !p.StartDate.After(at) && (p.EndDate == nil || p.EndDate.After(at)) {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListReceiptPolicies(ctx context.Context, accountID string) ([]domain.ReceiptPolicy, error) {
	return s.policies, nil
}

func (s *stubStore) InsertReceiptPolicy(ctx context.Context, policy *domain.ReceiptPolicy) error {
	policy.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, policy)
	return nil
}

func (s *stubStore) CloseReceiptPolicy(ctx context.Context, policyID int64, end time.Time) error {
	return nil
}

type stubTrigger struct {
	fired int
}

func (t *stubTrigger) TriggerNow() { t.fired++ }

func testCipher() *domain.TokenCipher {
	cipher, err := domain.NewTokenCipher("handlers-test-secret")
	if err != nil {
		panic("failed to build test cipher: " + err.Error())
	}
	return cipher
}

func newTestRouter(repo *stubStore, trigger *stubTrigger, apiKey string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(repo, app.NewPolicyEngine(repo, logger), trigger, testCipher(), logger)
	return NewRouter(handler, apiKey)
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubTrigger{}, "sekrit")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health without a key, got %d", rec.Code)
	}
}

func TestInternalAuthMiddleware(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubTrigger{}, "sekrit")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without the key, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	req.Header.Set("X-Internal-Api-Key", "wrong")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong key, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	req.Header.Set("X-Internal-Api-Key", "sekrit")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with the right key, got %d", rec.Code)
	}
}

func TestInternalAuthDisabledWhenKeyEmpty(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubTrigger{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through with an empty key, got %d", rec.Code)
	}
}

func TestSyncStatusNeverExposesTokenMaterial(t *testing.T) {
	token := "secret-token-abcd1234"
	sealed, err := testCipher().Encrypt(token)
	if err != nil {
		t.Fatalf("failed to encrypt test token: %v", err)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	status := domain.SyncStatusOK
	repo := &stubStore{groups: []domain.CredentialGroup{{
		ID:                 1,
		Name:               "Acme",
		APITokenCiphertext: sealed,
		Active:             true,
		SyncEnabled:        true,
		LastSyncAt:         &at,
		LastSyncStatus:     &status,
	}}}
	router := newTestRouter(repo, &stubTrigger{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, token) {
		t.Fatal("plaintext token leaked into the status payload")
	}
	if strings.Contains(body, sealed) {
		t.Fatal("token ciphertext leaked into the status payload")
	}
	if !strings.Contains(body, `"masked_token":"`+domain.MaskToken(token)+`"`) {
		t.Fatalf("expected the masked token in the payload, got %s", body)
	}
	if !strings.Contains(body, `"last_sync_status":"ok"`) {
		t.Fatalf("expected the sync status in the payload, got %s", body)
	}
}

func TestSyncStatusOmitsMaskWhenCiphertextIsUnreadable(t *testing.T) {
	repo := &stubStore{groups: []domain.CredentialGroup{{
		ID:                 1,
		Name:               "Stale",
		APITokenCiphertext: "not-a-ciphertext",
		Active:             true,
		SyncEnabled:        true,
	}}}
	router := newTestRouter(repo, &stubTrigger{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the listing to survive a bad ciphertext, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "masked_token") {
		t.Fatalf("expected no masked token for an unreadable ciphertext, got %s", rec.Body.String())
	}
}

func TestSyncRunReturnsAccepted(t *testing.T) {
	trigger := &stubTrigger{}
	router := newTestRouter(&stubStore{}, trigger, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/run", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if trigger.fired != 1 {
		t.Fatalf("expected the scheduler to be triggered once, got %d", trigger.fired)
	}
}

func TestGetReceiptPolicyNotFound(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubTrigger{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/acc-1/receipt-policy", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no policy covers the account, got %d", rec.Code)
	}
}

func TestSetReceiptPolicy(t *testing.T) {
	repo := &stubStore{account: &domain.Account{ID: "acc-1", Name: "Checking"}}
	router := newTestRouter(repo, &stubTrigger{}, "")

	body := `{"rules":{"deposits":{"kind":"none"},"charges":{"kind":"threshold","threshold":"100"}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/acc-1/receipt-policy", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one inserted policy row, got %d", len(repo.inserted))
	}
}

func TestSetReceiptPolicyRejectsPastEffectiveDate(t *testing.T) {
	repo := &stubStore{account: &domain.Account{ID: "acc-1"}}
	router := newTestRouter(repo, &stubTrigger{}, "")

	body := `{"rules":{"deposits":{"kind":"none"},"charges":{"kind":"always"}},"effective_at":"2001-01-01T00:00:00Z"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/acc-1/receipt-policy", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a past effective date, got %d", rec.Code)
	}
}

func TestSetReceiptPolicyUnknownAccount(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubTrigger{}, "")

	body := `{"rules":{"deposits":{"kind":"none"},"charges":{"kind":"always"}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/nope/receipt-policy", strings.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown account, got %d", rec.Code)
	}
}

func TestSetReceiptPolicyRejectsBadRuleKind(t *testing.T) {
	repo := &stubStore{account: &domain.Account{ID: "acc-1"}}
	router := newTestRouter(repo, &stubTrigger{}, "")

	body := `{"rules":{"deposits":{"kind":"sometimes"},"charges":{"kind":"always"}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/acc-1/receipt-policy", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown rule kind, got %d", rec.Code)
	}
}
