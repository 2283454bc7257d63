package mercuryclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListAccountsDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accounts":[{"id":"acc-1","name":"Checking"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", 5*time.Second)
	payload, err := client.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	container, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("expected a decoded JSON object, got %T", payload)
	}
	accounts, ok := container["accounts"].([]any)
	if !ok || len(accounts) != 1 {
		t.Fatalf("unexpected accounts payload: %v", container["accounts"])
	}
}

func TestListTransactionsSendsWindowParams(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/account/acc-1/transactions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("start") != "2024-05-01T00:00:00Z" {
			t.Fatalf("unexpected start %q", q.Get("start"))
		}
		if q.Get("end") != "2024-06-01T00:00:00Z" {
			t.Fatalf("unexpected end %q", q.Get("end"))
		}
		w.Write([]byte(`{"transactions":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", 5*time.Second)
	if _, err := client.ListTransactions(context.Background(), "acc-1", start, end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		kind   string
	}{
		{name: "401 is auth", status: http.StatusUnauthorized, body: `{"error":"bad token"}`, check: IsAuth, kind: "auth"},
		{name: "403 is auth", status: http.StatusForbidden, body: `{}`, check: IsAuth, kind: "auth"},
		{name: "429 is transient", status: http.StatusTooManyRequests, body: `{}`, check: IsTransient, kind: "transient"},
		{name: "500 is transient", status: http.StatusInternalServerError, body: `{}`, check: IsTransient, kind: "transient"},
		{name: "404 is payload", status: http.StatusNotFound, body: `{}`, check: IsPayload, kind: "payload"},
		{name: "bad json is payload", status: http.StatusOK, body: `{"accounts": [`, check: IsPayload, kind: "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-token", 5*time.Second)
			_, err := client.ListAccounts(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tt.check(err) {
				t.Fatalf("expected a %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse every connection

	client := NewClient(server.URL, "test-token", time.Second)
	_, err := client.ListAccounts(context.Background())
	if !IsTransient(err) {
		t.Fatalf("expected a transient error for a refused connection, got %v", err)
	}
}
