/**
 * @description
 * This file defines the `Repository` interface: the contract for every data
 * access operation the sync engine needs. The reconciler, policy engine and
 * ops API depend on this interface rather than on PostgreSQL directly, which
 * keeps them testable with in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: The engine's domain models.
 */
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

// MonthlyTotal is one month of the downstream report contract. Failed
// transactions are never counted and sent/posted are one completed set.
type MonthlyTotal struct {
	Month    time.Time       `json:"month"`
	Deposits decimal.Decimal `json:"deposits"`
	Charges  decimal.Decimal `json:"charges"`
	Count    int             `json:"count"`
}

// AccountSummary is the per-account line of the report contract over a window.
type AccountSummary struct {
	AccountID    string           `json:"account_id"`
	Name         string           `json:"name"`
	Currency     string           `json:"currency"`
	Balance      *decimal.Decimal `json:"balance,omitempty"`
	Transactions int              `json:"transactions"`
	Deposits     decimal.Decimal  `json:"deposits"`
	Charges      decimal.Decimal  `json:"charges"`
	LastActivity *time.Time       `json:"last_activity,omitempty"`
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// WithinTx runs fn inside one database transaction. The Repository handed
	// to fn is bound to that transaction; any error rolls everything back.
	WithinTx(ctx context.Context, fn func(Repository) error) error

	// Credential groups and per-tenant sync state.
	GetActiveCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error)
	ListCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error)
	RecordSyncResult(ctx context.Context, groupID int64, status string, syncedAt *time.Time) error

	// Accounts. Upserts key on the bank-assigned id, preserve stored values for
	// omitted fields and always re-bind the owning credential group.
	UpsertAccount(ctx context.Context, groupID int64, account *domain.Account) error
	ListAccountsByCredentialGroup(ctx context.Context, groupID int64) ([]domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)

	// Transactions. Rows that reached "failed" are immutable to the engine.
	UpsertTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	SetTransactionAttachmentCount(ctx context.Context, transactionID string, count int) error
	ListTransactionsByStatus(ctx context.Context, accountID string, statuses []string) ([]domain.Transaction, error)

	// Attachments: upsert the incoming set by synthesized id and delete every
	// stored row for the transaction that is not in it.
	ReconcileAttachments(ctx context.Context, transactionID string, attachments []domain.Attachment) (int, error)
	ListAttachments(ctx context.Context, transactionID string) ([]domain.Attachment, error)

	// Receipt policy history (append-only).
	InsertReceiptPolicy(ctx context.Context, policy *domain.ReceiptPolicy) error
	CloseReceiptPolicy(ctx context.Context, policyID int64, end time.Time) error
	GetEffectivePolicy(ctx context.Context, accountID string, at time.Time) (*domain.ReceiptPolicy, error)
	ListReceiptPolicies(ctx context.Context, accountID string) ([]domain.ReceiptPolicy, error)

	// Report contract for downstream collaborators.
	MonthlyTotals(ctx context.Context, from, to time.Time) ([]MonthlyTotal, error)
	AccountSummaries(ctx context.Context, from, to time.Time) ([]AccountSummary, error)
}
