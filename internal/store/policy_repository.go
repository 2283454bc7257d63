/**
 * @description
 * Receipt-policy history rows. The table is append-only: superseded rows get
 * their end_date set, never deleted. The effective-policy selector here is
 * the single authoritative lookup ("greatest start_date <= T, end_date null
 * or after T"); nothing else in the engine caches a current policy.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: Row scanning.
 * - github.com/shopspring/decimal: Nullable thresholds.
 * - internal/domain: ReceiptPolicy model.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

const receiptPolicyColumns = `
	id, account_id, start_date, end_date, receipt_required_deposits,
	receipt_threshold_deposits, receipt_required_charges,
	receipt_threshold_charges`

// InsertReceiptPolicy appends a new policy row and fills in its generated id.
func (r *PostgresRepository) InsertReceiptPolicy(ctx context.Context, policy *domain.ReceiptPolicy) error {
	query := `
		INSERT INTO receipt_policies (
			account_id, start_date, end_date, receipt_required_deposits,
			receipt_threshold_deposits, receipt_required_charges,
			receipt_threshold_charges
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.QueryRow(ctx, query,
		policy.AccountID,
		policy.StartDate,
		policy.EndDate,
		policy.Rules.Deposits.Kind,
		decimalOrNil(policy.Rules.Deposits.Threshold),
		policy.Rules.Charges.Kind,
		decimalOrNil(policy.Rules.Charges.Threshold),
	).Scan(&policy.ID)
	if err != nil {
		return fmt.Errorf("failed to insert receipt policy for account %s: %w", policy.AccountID, err)
	}
	return nil
}

// CloseReceiptPolicy sets end_date on a previously open row.
func (r *PostgresRepository) CloseReceiptPolicy(ctx context.Context, policyID int64, end time.Time) error {
	query := `
		UPDATE receipt_policies
		SET end_date = $2
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, policyID, end)
	if err != nil {
		return fmt.Errorf("failed to close receipt policy %d: %w", policyID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// GetEffectivePolicy returns the policy in force for an account at time `at`,
// or nil when the account has no policy covering that instant.
func (r *PostgresRepository) GetEffectivePolicy(ctx context.Context, accountID string, at time.Time) (*domain.ReceiptPolicy, error) {
	query := `
		SELECT ` + receiptPolicyColumns + `
		FROM receipt_policies
		WHERE account_id = $1
		  AND start_date <= $2
		  AND (end_date IS NULL OR end_date > $2)
		ORDER BY start_date DESC
		LIMIT 1`
	policy, err := scanReceiptPolicy(r.db.QueryRow(ctx, query, accountID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return policy, nil
}

// ListReceiptPolicies returns an account's full policy history in start order.
func (r *PostgresRepository) ListReceiptPolicies(ctx context.Context, accountID string) ([]domain.ReceiptPolicy, error) {
	query := `
		SELECT ` + receiptPolicyColumns + `
		FROM receipt_policies
		WHERE account_id = $1
		ORDER BY start_date ASC, id ASC`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt policies for %s: %w", accountID, err)
	}
	defer rows.Close()

	var policies []domain.ReceiptPolicy
	for rows.Next() {
		policy, err := scanReceiptPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}
	return policies, rows.Err()
}

func scanReceiptPolicy(row pgx.Row) (*domain.ReceiptPolicy, error) {
	var policy domain.ReceiptPolicy
	var depositThreshold, chargeThreshold decimal.NullDecimal
	err := row.Scan(
		&policy.ID,
		&policy.AccountID,
		&policy.StartDate,
		&policy.EndDate,
		&policy.Rules.Deposits.Kind,
		&depositThreshold,
		&policy.Rules.Charges.Kind,
		&chargeThreshold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan receipt policy: %w", err)
	}
	if depositThreshold.Valid {
		policy.Rules.Deposits.Threshold = &depositThreshold.Decimal
	}
	if chargeThreshold.Valid {
		policy.Rules.Charges.Threshold = &chargeThreshold.Decimal
	}
	return &policy, nil
}
