/**
 * @description
 * This package provides a client for the Mercury bank HTTP API. It
 * encapsulates authenticated requests to the accounts and transactions
 * endpoints and normalizes transport failures into a small taxonomy
 * (transient, auth, payload) that the reconciler's failure policy keys on.
 *
 * Key features:
 * - Bearer-token authentication; sandbox vs production is purely a matter of
 *   which base URL the credential bundle selects.
 * - Returns semi-structured payloads (decoded JSON); field extraction is the
 *   coercer's job, not the client's.
 * - Per-call timeout on the underlying http.Client.
 *
 * @dependencies
 * - context, encoding/json, fmt, io, net/http, net/url, time: Standard Go libraries.
 * - log/slog: Request logging (never logs the token).
 */
package mercuryclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind classifies an API failure for the reconciler's failure policy.
type ErrorKind string

const (
	// KindTransient covers network errors, 5xx responses and throttling.
	KindTransient ErrorKind = "transient"
	// KindAuth covers invalid or revoked tokens (401/403).
	KindAuth ErrorKind = "auth"
	// KindPayload covers responses that cannot be decoded.
	KindPayload ErrorKind = "payload"
)

// APIError is the normalized failure the client surfaces.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("mercury api %s error: status %d: %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("mercury api %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("mercury api %s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a normalized transient transport failure.
func IsTransient(err error) bool { return errKindIs(err, KindTransient) }

// IsAuth reports whether err is a normalized authentication failure.
func IsAuth(err error) bool { return errKindIs(err, KindAuth) }

// IsPayload reports whether err is a normalized unparseable-payload failure.
func IsPayload(err error) bool { return errKindIs(err, KindPayload) }

func errKindIs(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Client is a client for the Mercury API bound to one credential bundle.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Mercury API client. The base URL decides sandbox vs
// production; there is no global mode.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListAccounts fetches every account visible to the credential bundle. The
// payload is returned as decoded JSON; Mercury wraps the list in an
// {"accounts": [...]} container.
func (c *Client) ListAccounts(ctx context.Context) (any, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts", c.baseURL)
	return c.get(ctx, endpoint)
}

// ListTransactions fetches transactions for one account within the half-open
// UTC window [start, end). Mercury wraps the list in a {"transactions": [...]}
// container; records may embed an attachments sub-list.
func (c *Client) ListTransactions(ctx context.Context, accountID string, start, end time.Time) (any, error) {
	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/api/v1/account/%s/transactions?%s",
		c.baseURL, url.PathEscape(accountID), params.Encode())
	return c.get(ctx, endpoint)
}

// get performs an authenticated GET and decodes the JSON body.
func (c *Client) get(ctx context.Context, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	slog.Debug("mercury api request", "method", http.MethodGet, "url", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &APIError{Kind: KindAuth, StatusCode: resp.StatusCode, Message: truncateBody(body)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: truncateBody(body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &APIError{Kind: KindPayload, StatusCode: resp.StatusCode, Message: truncateBody(body)}
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{Kind: KindPayload, StatusCode: resp.StatusCode, Err: err}
	}
	return payload, nil
}

// truncateBody keeps error messages loggable when upstream returns large bodies.
func truncateBody(body []byte) string {
	const limit = 512
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
