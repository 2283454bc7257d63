/**
 * @description
 * Transaction persistence. Upserts key on the bank-assigned transaction id
 * with partial-update semantics; rows whose stored status is "failed" are
 * immutable to the engine. Status filters expand through the completed set so
 * "posted" and "sent" always match together.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: Row scanning.
 * - internal/domain: Transaction model and status sets.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

const transactionColumns = `
	id, account_id, amount, currency, description, bank_description,
	external_memo, note, kind, status, mercury_category, counterparty_name,
	counterparty_nickname, counterparty_account, reference_number,
	reason_for_failure, has_generated_receipt, number_of_attachments,
	posted_at, estimated_delivery_date, failed_at, created_at, updated_at`

// UpsertTransaction creates or updates a transaction by id. Omitted fields
// keep their stored values; amount and status are last-write-wins. A stored
// "failed" row is never touched again.
func (r *PostgresRepository) UpsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, account_id, amount, currency, description, bank_description,
			external_memo, note, kind, status, mercury_category,
			counterparty_name, counterparty_nickname, counterparty_account,
			reference_number, reason_for_failure, has_generated_receipt,
			posted_at, estimated_delivery_date, failed_at, created_at
		)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'USD'), $5, $6, $7, $8, $9,
			COALESCE(NULLIF($10, ''), 'pending'), $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, COALESCE($21, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			account_id              = EXCLUDED.account_id,
			amount                  = EXCLUDED.amount,
			currency                = COALESCE(NULLIF(EXCLUDED.currency, ''), transactions.currency),
			description             = COALESCE(EXCLUDED.description, transactions.description),
			bank_description        = COALESCE(EXCLUDED.bank_description, transactions.bank_description),
			external_memo           = COALESCE(EXCLUDED.external_memo, transactions.external_memo),
			note                    = COALESCE(EXCLUDED.note, transactions.note),
			kind                    = COALESCE(EXCLUDED.kind, transactions.kind),
			status                  = COALESCE(NULLIF(EXCLUDED.status, ''), transactions.status),
			mercury_category        = COALESCE(EXCLUDED.mercury_category, transactions.mercury_category),
			counterparty_name       = COALESCE(EXCLUDED.counterparty_name, transactions.counterparty_name),
			counterparty_nickname   = COALESCE(EXCLUDED.counterparty_nickname, transactions.counterparty_nickname),
			counterparty_account    = COALESCE(EXCLUDED.counterparty_account, transactions.counterparty_account),
			reference_number        = COALESCE(EXCLUDED.reference_number, transactions.reference_number),
			reason_for_failure      = COALESCE(EXCLUDED.reason_for_failure, transactions.reason_for_failure),
			has_generated_receipt   = EXCLUDED.has_generated_receipt,
			posted_at               = COALESCE(EXCLUDED.posted_at, transactions.posted_at),
			estimated_delivery_date = COALESCE(EXCLUDED.estimated_delivery_date, transactions.estimated_delivery_date),
			failed_at               = COALESCE(EXCLUDED.failed_at, transactions.failed_at),
			updated_at              = NOW()
		WHERE transactions.status <> 'failed'`
	var createdAt any
	if !tx.CreatedAt.IsZero() {
		createdAt = tx.CreatedAt
	}
	_, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.Amount,
		tx.Currency,
		tx.Description,
		tx.BankDescription,
		tx.ExternalMemo,
		tx.Note,
		tx.Kind,
		tx.Status,
		tx.MercuryCategory,
		tx.CounterpartyName,
		tx.CounterpartyNickname,
		tx.CounterpartyAccount,
		tx.ReferenceNumber,
		tx.ReasonForFailure,
		tx.HasGeneratedReceipt,
		tx.PostedAt,
		tx.EstimatedDeliveryDate,
		tx.FailedAt,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// GetTransaction retrieves one transaction by its bank-assigned id.
func (r *PostgresRepository) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// SetTransactionAttachmentCount overwrites number_of_attachments with the
// reconciled row count, regardless of what upstream claimed.
func (r *PostgresRepository) SetTransactionAttachmentCount(ctx context.Context, transactionID string, count int) error {
	query := `
		UPDATE transactions
		SET number_of_attachments = $2, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, transactionID, count)
	if err != nil {
		return fmt.Errorf("failed to set attachment count for %s: %w", transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListTransactionsByStatus returns an account's transactions matching the
// expanded status filter, pending first, then by effective date descending
// (the display ordering contract).
func (r *PostgresRepository) ListTransactionsByStatus(ctx context.Context, accountID string, statuses []string) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 AND status = ANY($2)
		ORDER BY (posted_at IS NULL) DESC, COALESCE(posted_at, created_at) DESC, id ASC`
	rows, err := r.db.Query(ctx, query, accountID, ExpandStatusFilter(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// ExpandStatusFilter widens a status set so that the completed statuses
// ("posted", "sent") always travel together: a filter naming either matches
// both.
func ExpandStatusFilter(statuses []string) []string {
	expanded := make([]string, 0, len(statuses)+1)
	seen := make(map[string]bool, len(statuses)+1)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			expanded = append(expanded, s)
		}
	}
	for _, s := range statuses {
		add(s)
		if domain.IsCompletedStatus(s) {
			for _, c := range domain.CompletedStatuses {
				add(c)
			}
		}
	}
	return expanded
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Amount,
		&tx.Currency,
		&tx.Description,
		&tx.BankDescription,
		&tx.ExternalMemo,
		&tx.Note,
		&tx.Kind,
		&tx.Status,
		&tx.MercuryCategory,
		&tx.CounterpartyName,
		&tx.CounterpartyNickname,
		&tx.CounterpartyAccount,
		&tx.ReferenceNumber,
		&tx.ReasonForFailure,
		&tx.HasGeneratedReceipt,
		&tx.NumberOfAttachments,
		&tx.PostedAt,
		&tx.EstimatedDeliveryDate,
		&tx.FailedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &tx, nil
}
