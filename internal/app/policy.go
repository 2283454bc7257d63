/**
 * @description
 * The receipt-policy engine: maintains each account's append-only policy
 * history and answers "what policy applied to a transaction effective at T".
 * Immediate changes close the active row at now; scheduled changes truncate
 * it at the effective instant so rows never overlap. The store's
 * GetEffectivePolicy selector is the only lookup path.
 *
 * @dependencies
 * - context, errors, log/slog, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Amounts and thresholds.
 * - internal/domain, internal/store: Models and persistence contract.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/store"
)

// ErrPastEffectiveDate rejects policy changes dated before today.
var ErrPastEffectiveDate = errors.New("policy effective date is in the past")

// PolicyEngine owns receipt-policy history and lookups.
type PolicyEngine struct {
	repo   store.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewPolicyEngine creates a policy engine over the given repository.
func NewPolicyEngine(repo store.Repository, logger *slog.Logger) *PolicyEngine {
	return &PolicyEngine{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ApplyChange records a policy change for an account. A nil or current
// effectiveAt applies immediately: the active row (if any) is closed at now
// and a new open row begins, unless the rules are semantically unchanged, in
// which case nothing happens. A future effectiveAt schedules the change: the
// active row is truncated at that instant and the new row starts there.
// Past-dated changes are rejected.
func (e *PolicyEngine) ApplyChange(ctx context.Context, accountID string, rules domain.PolicyRules, effectiveAt *time.Time) error {
	now := e.now().UTC()
	start := now
	scheduled := false

	if effectiveAt != nil {
		at := effectiveAt.UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if at.Before(today) {
			return ErrPastEffectiveDate
		}
		if at.After(now) {
			scheduled = true
			start = at
		}
	}

	return e.repo.WithinTx(ctx, func(repo store.Repository) error {
		current, err := repo.GetEffectivePolicy(ctx, accountID, now)
		if err != nil {
			return fmt.Errorf("failed to load effective policy: %w", err)
		}

		if !scheduled && current != nil && current.Rules.Equal(rules) {
			e.logger.Debug("policy unchanged; skipping", "account_id", accountID)
			return nil
		}

		if current != nil && (current.EndDate == nil || current.EndDate.After(start)) {
			if err := repo.CloseReceiptPolicy(ctx, current.ID, start); err != nil {
				return fmt.Errorf("failed to close active policy: %w", err)
			}
		}

		policy := &domain.ReceiptPolicy{
			AccountID: accountID,
			StartDate: start,
			Rules:     rules,
		}
		if err := repo.InsertReceiptPolicy(ctx, policy); err != nil {
			return fmt.Errorf("failed to insert policy row: %w", err)
		}

		e.logger.Info("receipt policy changed",
			"account_id", accountID,
			"policy_id", policy.ID,
			"start_date", start,
			"scheduled", scheduled,
		)
		return nil
	})
}

// RequiredFor answers whether a receipt is required for an amount at a point
// in time, combined with whether an attachment is present. A positive amount
// consults the deposit rule, otherwise the charge rule; accounts without a
// covering policy never require receipts.
func (e *PolicyEngine) RequiredFor(ctx context.Context, accountID string, amount decimal.Decimal, at time.Time, hasAttachments bool) (domain.ReceiptRequirement, error) {
	policy, err := e.repo.GetEffectivePolicy(ctx, accountID, at)
	if err != nil {
		return "", fmt.Errorf("failed to load effective policy: %w", err)
	}

	required := false
	if policy != nil {
		rule := policy.Rules.Charges
		if amount.Sign() > 0 {
			rule = policy.Rules.Deposits
		}
		switch rule.Kind {
		case domain.ReceiptRuleAlways:
			required = true
		case domain.ReceiptRuleThreshold:
			required = rule.Threshold != nil && amount.Abs().GreaterThanOrEqual(*rule.Threshold)
		}
	}

	switch {
	case required && hasAttachments:
		return domain.ReceiptRequiredPresent, nil
	case required:
		return domain.ReceiptRequiredMissing, nil
	case hasAttachments:
		return domain.ReceiptOptionalPresent, nil
	default:
		return domain.ReceiptOptionalMissing, nil
	}
}

// RequiredForTransaction is RequiredFor evaluated at a transaction's
// effective date with its reconciled attachment count.
func (e *PolicyEngine) RequiredForTransaction(ctx context.Context, tx *domain.Transaction) (domain.ReceiptRequirement, error) {
	return e.RequiredFor(ctx, tx.AccountID, tx.Amount, tx.EffectiveDate(), tx.NumberOfAttachments > 0)
}
