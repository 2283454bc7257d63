/**
 * @description
 * Credential-group queries: the read-only view the reconciler enumerates and
 * the per-tenant sync state it writes back. Sync state is folded into the
 * credential_groups table (last_sync_at, last_sync_status).
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - internal/domain: CredentialGroup model.
 */
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

const credentialGroupColumns = `
	id, name, api_token_ciphertext, sandbox, active, sync_enabled,
	last_sync_at, last_sync_status`

// GetActiveCredentialGroups returns every group eligible for syncing
// (active AND sync_enabled), oldest-synced first so starved tenants recover.
func (r *PostgresRepository) GetActiveCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error) {
	query := `
		SELECT ` + credentialGroupColumns + `
		FROM credential_groups
		WHERE active AND sync_enabled
		ORDER BY last_sync_at ASC NULLS FIRST, id ASC`
	return r.scanCredentialGroups(ctx, query)
}

// ListCredentialGroups returns every group regardless of flags, for the ops
// status surface.
func (r *PostgresRepository) ListCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error) {
	query := `
		SELECT ` + credentialGroupColumns + `
		FROM credential_groups
		ORDER BY id ASC`
	return r.scanCredentialGroups(ctx, query)
}

func (r *PostgresRepository) scanCredentialGroups(ctx context.Context, query string) ([]domain.CredentialGroup, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query credential groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.CredentialGroup
	for rows.Next() {
		var g domain.CredentialGroup
		if err := rows.Scan(
			&g.ID, &g.Name, &g.APITokenCiphertext, &g.Sandbox, &g.Active,
			&g.SyncEnabled, &g.LastSyncAt, &g.LastSyncStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credential group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// RecordSyncResult persists the outcome of a tenant sync. last_sync_at is only
// advanced when syncedAt is non-nil (successful or partial runs).
func (r *PostgresRepository) RecordSyncResult(ctx context.Context, groupID int64, status string, syncedAt *time.Time) error {
	query := `
		UPDATE credential_groups
		SET last_sync_status = $2,
		    last_sync_at = COALESCE($3, last_sync_at),
		    updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, groupID, status, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to record sync result for group %d: %w", groupID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialGroupNotFound
	}
	return nil
}
