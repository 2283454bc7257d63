/**
 * @description
 * Attachment reconciliation. Upstream attachments carry no durable identity,
 * so rows key on ids synthesized by the app layer; this file only guarantees
 * that after a reconcile the stored set for a transaction equals the incoming
 * set. The upsert always overwrites file metadata and the URL expiry, and the
 * ON CONFLICT form keeps concurrent reconcilers of the same transaction
 * convergent without a read-then-write race.
 *
 * @dependencies
 * - context, fmt: Standard Go libraries.
 * - internal/domain: Attachment model.
 */
package store

import (
	"context"
	"fmt"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

const attachmentColumns = `
	id, transaction_id, filename, content_type, file_size, description,
	source_url, thumbnail_url, url_expires_at, upload_date, created_at,
	updated_at`

// ReconcileAttachments upserts each incoming attachment by synthesized id and
// deletes every stored attachment for the transaction whose id is not in the
// incoming set. Returns the reconciled count. Callers run this inside the
// tenant transaction, so readers never observe a half-applied set.
func (r *PostgresRepository) ReconcileAttachments(ctx context.Context, transactionID string, attachments []domain.Attachment) (int, error) {
	upsert := `
		INSERT INTO transaction_attachments (
			id, transaction_id, filename, content_type, file_size, description,
			source_url, thumbnail_url, url_expires_at, upload_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			filename       = EXCLUDED.filename,
			content_type   = EXCLUDED.content_type,
			file_size      = EXCLUDED.file_size,
			description    = EXCLUDED.description,
			source_url     = EXCLUDED.source_url,
			thumbnail_url  = EXCLUDED.thumbnail_url,
			url_expires_at = EXCLUDED.url_expires_at,
			upload_date    = COALESCE(EXCLUDED.upload_date, transaction_attachments.upload_date),
			updated_at     = NOW()`

	keep := make([]string, 0, len(attachments))
	for _, att := range attachments {
		if _, err := r.db.Exec(ctx, upsert,
			att.ID,
			transactionID,
			att.Filename,
			att.ContentType,
			att.FileSize,
			att.Description,
			att.SourceURL,
			att.ThumbnailURL,
			att.URLExpiresAt,
			att.UploadDate,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert attachment %s: %w", att.ID, err)
		}
		keep = append(keep, att.ID)
	}

	del := `
		DELETE FROM transaction_attachments
		WHERE transaction_id = $1 AND NOT (id = ANY($2))`
	if _, err := r.db.Exec(ctx, del, transactionID, keep); err != nil {
		return 0, fmt.Errorf("failed to prune attachments for %s: %w", transactionID, err)
	}

	return len(attachments), nil
}

// ListAttachments returns the stored attachments for a transaction.
func (r *PostgresRepository) ListAttachments(ctx context.Context, transactionID string) ([]domain.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + `
		FROM transaction_attachments
		WHERE transaction_id = $1
		ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments for %s: %w", transactionID, err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.TransactionID,
			&att.Filename,
			&att.ContentType,
			&att.FileSize,
			&att.Description,
			&att.SourceURL,
			&att.ThumbnailURL,
			&att.URLExpiresAt,
			&att.UploadDate,
			&att.CreatedAt,
			&att.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}
