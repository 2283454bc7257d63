/**
 * @description
 * Account persistence. Upserts key on the bank-assigned account id, preserve
 * stored values for fields upstream omitted (partial-update semantics) and
 * re-bind the owning credential group on every sync, so moving an account to
 * another tenant is last-writer-wins.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: Row scanning.
 * - github.com/shopspring/decimal: Nullable balance columns.
 * - internal/domain: Account model.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

const accountColumns = `
	id, credential_group_id, name, nickname, type, status, balance,
	available_balance, currency, kind, legal_business_name,
	exclude_from_reports, created_at, updated_at`

// UpsertAccount creates or updates an account by its bank-assigned id.
// The credential group binding is always overwritten; every other field only
// replaces the stored value when upstream supplied one.
func (r *PostgresRepository) UpsertAccount(ctx context.Context, groupID int64, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			id, credential_group_id, name, nickname, type, status, balance,
			available_balance, currency, kind, legal_business_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, ''), 'USD'), $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			credential_group_id = EXCLUDED.credential_group_id,
			name                = COALESCE(NULLIF(EXCLUDED.name, ''), accounts.name),
			nickname            = COALESCE(EXCLUDED.nickname, accounts.nickname),
			type                = COALESCE(EXCLUDED.type, accounts.type),
			status              = COALESCE(EXCLUDED.status, accounts.status),
			balance             = COALESCE(EXCLUDED.balance, accounts.balance),
			available_balance   = COALESCE(EXCLUDED.available_balance, accounts.available_balance),
			currency            = COALESCE(NULLIF(EXCLUDED.currency, ''), accounts.currency),
			kind                = COALESCE(EXCLUDED.kind, accounts.kind),
			legal_business_name = COALESCE(EXCLUDED.legal_business_name, accounts.legal_business_name),
			updated_at          = NOW()`
	_, err := r.db.Exec(ctx, query,
		account.ID,
		groupID,
		account.Name,
		account.Nickname,
		account.Type,
		account.Status,
		decimalOrNil(account.Balance),
		decimalOrNil(account.AvailableBalance),
		account.Currency,
		account.Kind,
		account.LegalBusinessName,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.ID, err)
	}
	return nil
}

// ListAccountsByCredentialGroup returns the accounts currently bound to one
// tenant, which is the fan-out set for the transactions phase.
func (r *PostgresRepository) ListAccountsByCredentialGroup(ctx context.Context, groupID int64) ([]domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE credential_group_id = $1
		ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts for group %d: %w", groupID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// GetAccount retrieves one account by its bank-assigned id.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	var balance, availableBalance decimal.NullDecimal
	err := row.Scan(
		&account.ID,
		&account.CredentialGroupID,
		&account.Name,
		&account.Nickname,
		&account.Type,
		&account.Status,
		&balance,
		&availableBalance,
		&account.Currency,
		&account.Kind,
		&account.LegalBusinessName,
		&account.ExcludeFromReports,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	if balance.Valid {
		account.Balance = &balance.Decimal
	}
	if availableBalance.Valid {
		account.AvailableBalance = &availableBalance.Decimal
	}
	return &account, nil
}

// decimalOrNil converts an optional decimal into a driver-friendly value.
func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
