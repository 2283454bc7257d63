/**
 * @description
 * This file defines the core domain models for the bank sync engine: credential
 * groups (tenants), Mercury accounts, transactions, their attachments, and the
 * point-in-time receipt policy rows. These are plain typed records; all joins
 * and lifecycle rules live in the store and app layers.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/shopspring/decimal: Precise decimal type for money amounts.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction status values as persisted. Upstream emits both "sent" and
// "posted" for completed transfers; both are stored verbatim and every query
// path treats them as one completed set.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusPosted    = "posted"
	TransactionStatusSent      = "sent"
	TransactionStatusCancelled = "cancelled"
	TransactionStatusFailed    = "failed"
)

// CompletedStatuses is the set of statuses that count as a settled transaction.
var CompletedStatuses = []string{TransactionStatusPosted, TransactionStatusSent}

// IsCompletedStatus reports whether a stored status belongs to the completed set.
func IsCompletedStatus(status string) bool {
	return status == TransactionStatusPosted || status == TransactionStatusSent
}

// Per-tenant outcome of the most recent sync attempt.
const (
	SyncStatusOK        = "ok"
	SyncStatusAuth      = "auth"
	SyncStatusTransport = "transport"
	SyncStatusPartial   = "partial"
	SyncStatusError     = "error"
)

// CredentialGroup is a tenant: one Mercury API credential set plus the
// operational flags that gate syncing.
type CredentialGroup struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	APITokenCiphertext string     `json:"-"`
	Sandbox            bool       `json:"sandbox"`
	Active             bool       `json:"active"`
	SyncEnabled        bool       `json:"sync_enabled"`
	LastSyncAt         *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus     *string    `json:"last_sync_status,omitempty"`
}

// Account mirrors a Mercury bank account. The id is bank-assigned. The owning
// credential group is re-bound on every sync and may be nil for orphaned rows.
type Account struct {
	ID                 string           `json:"id"`
	CredentialGroupID  *int64           `json:"credential_group_id,omitempty"`
	Name               string           `json:"name"`
	Nickname           *string          `json:"nickname,omitempty"`
	Type               *string          `json:"type,omitempty"`
	Status             *string          `json:"status,omitempty"`
	Balance            *decimal.Decimal `json:"balance,omitempty"`
	AvailableBalance   *decimal.Decimal `json:"available_balance,omitempty"`
	Currency           string           `json:"currency"`
	Kind               *string          `json:"kind,omitempty"`
	LegalBusinessName  *string          `json:"legal_business_name,omitempty"`
	ExcludeFromReports bool             `json:"exclude_from_reports"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Transaction mirrors a Mercury transaction. Amounts are signed: expenses are
// negative. Once a transaction is stored as failed the engine never updates it.
type Transaction struct {
	ID                    string          `json:"id"`
	AccountID             string          `json:"account_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Description           *string         `json:"description,omitempty"`
	BankDescription       *string         `json:"bank_description,omitempty"`
	ExternalMemo          *string         `json:"external_memo,omitempty"`
	Note                  *string         `json:"note,omitempty"`
	Kind                  *string         `json:"kind,omitempty"`
	Status                string          `json:"status"`
	MercuryCategory       *string         `json:"mercury_category,omitempty"`
	CounterpartyName      *string         `json:"counterparty_name,omitempty"`
	CounterpartyNickname  *string         `json:"counterparty_nickname,omitempty"`
	CounterpartyAccount   *string         `json:"counterparty_account,omitempty"`
	ReferenceNumber       *string         `json:"reference_number,omitempty"`
	ReasonForFailure      *string         `json:"reason_for_failure,omitempty"`
	HasGeneratedReceipt   bool            `json:"has_generated_receipt"`
	NumberOfAttachments   int             `json:"number_of_attachments"`
	PostedAt              *time.Time      `json:"posted_at,omitempty"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date,omitempty"`
	FailedAt              *time.Time      `json:"failed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// EffectiveDate is the timestamp used for ordering, month grouping and policy
// lookup: posted_at when present, otherwise created_at.
func (t *Transaction) EffectiveDate() time.Time {
	if t.PostedAt != nil {
		return *t.PostedAt
	}
	return t.CreatedAt
}

// Attachment is a file attached to a transaction upstream. Upstream provides no
// durable identity, so the id is synthesized (see app.SynthesizeAttachmentID)
// and must stay stable across reruns. Rows are deleted when upstream drops the
// attachment.
type Attachment struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	Filename      *string    `json:"filename,omitempty"`
	ContentType   *string    `json:"content_type,omitempty"`
	FileSize      *int64     `json:"file_size,omitempty"`
	Description   *string    `json:"description,omitempty"`
	SourceURL     *string    `json:"source_url,omitempty"`
	ThumbnailURL  *string    `json:"thumbnail_url,omitempty"`
	URLExpiresAt  *time.Time `json:"url_expires_at,omitempty"`
	UploadDate    *time.Time `json:"upload_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Receipt rule kinds for one side (deposits or charges) of a policy.
const (
	ReceiptRuleNone      = "none"
	ReceiptRuleAlways    = "always"
	ReceiptRuleThreshold = "threshold"
)

// ReceiptRule is one side of a receipt policy: a kind plus an optional
// threshold in the account's currency (meaningful only for "threshold").
type ReceiptRule struct {
	Kind      string           `json:"kind"`
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
}

// Equal reports semantic equality of two rules. Threshold values compare by
// numeric value, not representation.
func (r ReceiptRule) Equal(other ReceiptRule) bool {
	if r.Kind != other.Kind {
		return false
	}
	if r.Kind != ReceiptRuleThreshold {
		return true
	}
	if r.Threshold == nil || other.Threshold == nil {
		return r.Threshold == nil && other.Threshold == nil
	}
	return r.Threshold.Equal(*other.Threshold)
}

// PolicyRules pairs the independent deposit and charge rules of a policy.
type PolicyRules struct {
	Deposits ReceiptRule `json:"deposits"`
	Charges  ReceiptRule `json:"charges"`
}

// Equal reports semantic equality of both sides.
func (p PolicyRules) Equal(other PolicyRules) bool {
	return p.Deposits.Equal(other.Deposits) && p.Charges.Equal(other.Charges)
}

// ReceiptPolicy is one row of an account's append-only policy history. A nil
// EndDate marks the currently active or a scheduled row. Rows never overlap.
type ReceiptPolicy struct {
	ID        int64       `json:"id"`
	AccountID string      `json:"account_id"`
	StartDate time.Time   `json:"start_date"`
	EndDate   *time.Time  `json:"end_date,omitempty"`
	Rules     PolicyRules `json:"rules"`
}

// ReceiptRequirement is the combined answer of a policy lookup against a
// transaction's attachment state.
type ReceiptRequirement string

const (
	ReceiptRequiredPresent ReceiptRequirement = "required_present"
	ReceiptRequiredMissing ReceiptRequirement = "required_missing"
	ReceiptOptionalPresent ReceiptRequirement = "optional_present"
	ReceiptOptionalMissing ReceiptRequirement = "optional_missing"
)
