/**
 * @description
 * Report-contract queries consumed by downstream dashboards and exporters.
 * These embody the documented aggregation rules: failed transactions are
 * never counted, "sent" and "posted" are one completed set, months group by
 * the effective date (posted_at falling back to created_at), and accounts
 * flagged exclude_from_reports are left out.
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Aggregated totals.
 * - internal/domain: Transaction status constants.
 */
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

// CountsTowardReports reports whether one transaction row participates in the
// report aggregations. It is the Go statement of the SQL filters below: failed
// transactions never count, and accounts flagged exclude_from_reports
// contribute nothing.
func CountsTowardReports(txStatus string, excludeFromReports bool) bool {
	return txStatus != domain.TransactionStatusFailed && !excludeFromReports
}

// MonthlyTotals aggregates deposits and charges per calendar month across all
// reportable accounts within [from, to).
func (r *PostgresRepository) MonthlyTotals(ctx context.Context, from, to time.Time) ([]MonthlyTotal, error) {
	query := `
		SELECT
			date_trunc('month', COALESCE(t.posted_at, t.created_at)) AS month,
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount > 0), 0) AS deposits,
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount < 0), 0) AS charges,
			COUNT(*) AS count
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.status <> 'failed'
		  AND NOT a.exclude_from_reports
		  AND COALESCE(t.posted_at, t.created_at) >= $1
		  AND COALESCE(t.posted_at, t.created_at) < $2
		GROUP BY 1
		ORDER BY 1 ASC`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []MonthlyTotal
	for rows.Next() {
		var t MonthlyTotal
		if err := rows.Scan(&t.Month, &t.Deposits, &t.Charges, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// AccountSummaries aggregates per-account activity within [from, to).
// Excluded accounts still appear in the listing contract, just without
// transaction aggregates, so dashboards can show why a balance exists.
func (r *PostgresRepository) AccountSummaries(ctx context.Context, from, to time.Time) ([]AccountSummary, error) {
	query := `
		SELECT
			a.id,
			a.name,
			a.currency,
			a.balance,
			COUNT(t.id) AS transactions,
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount > 0), 0) AS deposits,
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount < 0), 0) AS charges,
			MAX(COALESCE(t.posted_at, t.created_at)) AS last_activity
		FROM accounts a
		LEFT JOIN transactions t
			ON t.account_id = a.id
			AND t.status <> 'failed'
			AND NOT a.exclude_from_reports
			AND COALESCE(t.posted_at, t.created_at) >= $1
			AND COALESCE(t.posted_at, t.created_at) < $2
		GROUP BY a.id, a.name, a.currency, a.balance
		ORDER BY a.id ASC`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query account summaries: %w", err)
	}
	defer rows.Close()

	var summaries []AccountSummary
	for rows.Next() {
		var s AccountSummary
		var balance decimal.NullDecimal
		if err := rows.Scan(
			&s.AccountID, &s.Name, &s.Currency, &balance,
			&s.Transactions, &s.Deposits, &s.Charges, &s.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account summary: %w", err)
		}
		if balance.Valid {
			s.Balance = &balance.Decimal
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
