/**
 * @description
 * Event payloads published to the message broker after each tenant sync so
 * downstream collaborators (dashboards, reporting) can react without polling.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: Event and run correlation ids.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for sync lifecycle events on the topic exchange.
const (
	SyncTenantCompletedKey = "sync.tenant.completed"
	SyncTenantFailedKey    = "sync.tenant.failed"
)

// SyncTenantEvent describes the outcome of one credential group within a tick.
type SyncTenantEvent struct {
	EventID           uuid.UUID `json:"event_id"`
	RunID             uuid.UUID `json:"run_id"`
	CredentialGroupID int64     `json:"credential_group_id"`
	Status            string    `json:"status"`
	Accounts          int       `json:"accounts"`
	Transactions      int       `json:"transactions"`
	Attachments       int       `json:"attachments"`
	CompletedAt       time.Time `json:"completed_at"`
}
