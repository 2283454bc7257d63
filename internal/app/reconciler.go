/**
 * @description
 * Per-tenant sync orchestration. One Run is a tick: it enumerates active
 * credential groups, fans them out over a bounded worker pool, and for each
 * group pulls accounts then transactions (with nested attachments) from the
 * bank API into the store. Failures are isolated per tenant, per account
 * batch and per record; one bad tenant never stops the others.
 *
 * Ordering within a tenant: the accounts phase commits before the
 * transactions phase starts, and no database transaction is ever held open
 * across a bank API call.
 *
 * @dependencies
 * - context, errors, log/slog, time: Standard Go libraries.
 * - github.com/google/uuid: Run correlation ids.
 * - golang.org/x/sync/errgroup: Bounded tenant fan-out.
 * - internal/coerce, internal/domain, internal/store: Field extraction,
 *   models and persistence.
 * - pkg/mercuryclient: Failure taxonomy of the bank API adapter.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/coerce"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/store"
	"github.com/kumpeapps/mercury-bank-download-sub000/pkg/mercuryclient"
)

// BankClient is the adapter surface the reconciler consumes. Payloads are
// semi-structured: either a flat list or a container with a named list member.
type BankClient interface {
	ListAccounts(ctx context.Context) (any, error)
	ListTransactions(ctx context.Context, accountID string, start, end time.Time) (any, error)
}

// BankClientFactory builds a client for one credential bundle. Sandbox vs
// production selection belongs to the bundle, not to the process.
type BankClientFactory func(token string, sandbox bool) BankClient

// SyncLocker guards a tenant against concurrent syncs from another engine
// instance. Implementations must be safe for a nil no-op fallback.
type SyncLocker interface {
	TryLock(ctx context.Context, groupID int64, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, groupID int64) error
}

// EventPublisher receives tenant sync lifecycle events.
type EventPublisher interface {
	PublishSyncTenantEvent(ctx context.Context, routingKey string, event domain.SyncTenantEvent) error
}

// GroupResult is the outcome of one credential group within a tick.
type GroupResult struct {
	GroupID      int64
	Status       string
	Skipped      bool
	Accounts     int
	Transactions int
	Attachments  int
	Err          error
}

// RunResult summarizes one tick.
type RunResult struct {
	RunID  uuid.UUID
	Groups []GroupResult
}

// AllTransient reports whether every processed tenant failed on transport,
// which signals the scheduler to retry on the shorter recovery interval.
func (r RunResult) AllTransient() bool {
	seen := false
	for _, g := range r.Groups {
		if g.Skipped {
			continue
		}
		seen = true
		if g.Status != domain.SyncStatusTransport {
			return false
		}
	}
	return seen
}

// Totals sums the per-group counters for logging.
func (r RunResult) Totals() (accounts, transactions, attachments int) {
	for _, g := range r.Groups {
		accounts += g.Accounts
		transactions += g.Transactions
		attachments += g.Attachments
	}
	return
}

// Reconciler drives the sync for all tenants.
type Reconciler struct {
	repo       store.Repository
	cipher     *domain.TokenCipher
	newClient  BankClientFactory
	publisher  EventPublisher
	locker     SyncLocker
	logger     *slog.Logger
	windowDays int
	workers    int
	lockTTL    time.Duration
	now        func() time.Time
}

// NewReconciler creates a reconciler. windowDays is the rolling transaction
// lookback; workers bounds tenant parallelism (1 = sequential).
func NewReconciler(repo store.Repository, cipher *domain.TokenCipher, factory BankClientFactory, logger *slog.Logger, windowDays, workers int) *Reconciler {
	if windowDays <= 0 {
		windowDays = 30
	}
	if workers <= 0 {
		workers = 1
	}
	return &Reconciler{
		repo:       repo,
		cipher:     cipher,
		newClient:  factory,
		logger:     logger,
		windowDays: windowDays,
		workers:    workers,
		lockTTL:    15 * time.Minute,
		now:        time.Now,
	}
}

// SetEventPublisher wires the optional broker feed.
func (r *Reconciler) SetEventPublisher(publisher EventPublisher) {
	r.publisher = publisher
}

// SetSyncLocker wires the optional cross-instance tenant lock.
func (r *Reconciler) SetSyncLocker(locker SyncLocker, ttl time.Duration) {
	r.locker = locker
	if ttl > 0 {
		r.lockTTL = ttl
	}
}

// Run executes one sync tick over every active, sync-enabled credential
// group. It only returns an error when the tenant set itself cannot be
// loaded; per-tenant failures are reported in the result.
func (r *Reconciler) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{RunID: uuid.New()}

	groups, err := r.repo.GetActiveCredentialGroups(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list credential groups: %w", err)
	}
	if len(groups) == 0 {
		r.logger.Info("no active credential groups to sync", "run_id", result.RunID)
		return result, nil
	}

	result.Groups = make([]GroupResult, len(groups))
	var eg errgroup.Group
	eg.SetLimit(r.workers)
	for i, group := range groups {
		i, group := i, group
		eg.Go(func() error {
			result.Groups[i] = r.syncGroup(ctx, result.RunID, group)
			return nil
		})
	}
	_ = eg.Wait()

	accounts, transactions, attachments := result.Totals()
	r.logger.Info("sync tick finished",
		"run_id", result.RunID,
		"groups", len(groups),
		"accounts", accounts,
		"transactions", transactions,
		"attachments", attachments,
	)
	return result, nil
}

// syncGroup syncs one tenant end to end. It never panics outward and never
// returns an error: the outcome is encoded in the GroupResult and the
// persisted sync state.
func (r *Reconciler) syncGroup(ctx context.Context, runID uuid.UUID, group domain.CredentialGroup) GroupResult {
	logger := r.logger.With("run_id", runID, "credential_group_id", group.ID)
	res := GroupResult{GroupID: group.ID}

	if ctx.Err() != nil {
		res.Skipped = true
		return res
	}

	if r.locker != nil {
		acquired, err := r.locker.TryLock(ctx, group.ID, r.lockTTL)
		if err != nil {
			logger.Warn("sync lock unavailable; proceeding without it", "error", err)
		} else if !acquired {
			logger.Info("tenant is being synced by another instance; skipping")
			res.Skipped = true
			return res
		} else {
			defer func() {
				if err := r.locker.Unlock(context.WithoutCancel(ctx), group.ID); err != nil {
					logger.Warn("failed to release sync lock", "error", err)
				}
			}()
		}
	}

	token, err := r.cipher.Decrypt(group.APITokenCiphertext)
	if err != nil {
		logger.Error("failed to decrypt api token", "error", err)
		return r.finishGroup(ctx, logger, runID, res, domain.SyncStatusError, err)
	}
	client := r.newClient(token, group.Sandbox)

	partial := false

	// Accounts phase: one transaction, committed before any transactions work.
	payload, err := client.ListAccounts(ctx)
	if err != nil {
		return r.finishGroup(ctx, logger, runID, res, classifyAPIError(err), err)
	}
	accountRecords := coerce.UnwrapList(payload, "accounts")

	err = r.repo.WithinTx(ctx, func(repo store.Repository) error {
		for _, rec := range accountRecords {
			account := buildAccount(rec)
			if account == nil {
				logger.Warn("skipping account record without id")
				partial = true
				continue
			}
			if err := repo.UpsertAccount(ctx, group.ID, account); err != nil {
				return err
			}
			res.Accounts++
		}
		return nil
	})
	if err != nil {
		res.Accounts = 0
		logger.Error("accounts phase rolled back", "error", err)
		return r.finishGroup(ctx, logger, runID, res, domain.SyncStatusError, err)
	}

	// Transactions phase: fan over the accounts now bound to this tenant, one
	// transaction batch per account, fetched before the batch opens.
	accounts, err := r.repo.ListAccountsByCredentialGroup(ctx, group.ID)
	if err != nil {
		logger.Error("failed to list stored accounts", "error", err)
		return r.finishGroup(ctx, logger, runID, res, domain.SyncStatusError, err)
	}

	end := r.now().UTC()
	start := end.AddDate(0, 0, -r.windowDays)

	for _, account := range accounts {
		if ctx.Err() != nil {
			partial = true
			break
		}

		payload, err := client.ListTransactions(ctx, account.ID, start, end)
		if err != nil {
			if mercuryclient.IsAuth(err) {
				logger.Error("authentication failed mid-sync", "account_id", account.ID, "error", err)
				return r.finishGroup(ctx, logger, runID, res, domain.SyncStatusAuth, err)
			}
			logger.Warn("transactions fetch failed; continuing with next account",
				"account_id", account.ID, "error", err)
			partial = true
			continue
		}
		txRecords := coerce.UnwrapList(payload, "transactions")

		err = r.repo.WithinTx(ctx, func(repo store.Repository) error {
			for _, rec := range txRecords {
				attachments, err := r.processTransaction(ctx, repo, account.ID, rec, logger)
				if err != nil {
					return err
				}
				if attachments < 0 {
					partial = true
					continue
				}
				res.Transactions++
				res.Attachments += attachments
			}
			return nil
		})
		if err != nil {
			logger.Error("account transaction batch rolled back",
				"account_id", account.ID, "error", err)
			partial = true
		}
	}

	status := domain.SyncStatusOK
	if partial {
		status = domain.SyncStatusPartial
	}
	return r.finishGroup(ctx, logger, runID, res, status, nil)
}

// processTransaction upserts one transaction record and reconciles its
// attachments. Returns the reconciled attachment count, or -1 when the record
// was malformed and skipped. Errors abort the surrounding account batch.
func (r *Reconciler) processTransaction(ctx context.Context, repo store.Repository, accountID string, rec any, logger *slog.Logger) (int, error) {
	id := coerce.String(rec, "id")
	if id == "" {
		logger.Warn("skipping transaction record without id", "account_id", accountID)
		return -1, nil
	}

	tx := buildTransaction(accountID, rec)
	if err := repo.UpsertTransaction(ctx, tx); err != nil {
		return 0, err
	}

	stored, err := repo.GetTransaction(ctx, id)
	if err != nil {
		return 0, err
	}
	if stored.Status == domain.TransactionStatusFailed {
		// Failed rows are frozen; leave their attachments untouched.
		return stored.NumberOfAttachments, nil
	}

	attachmentsPayload, _ := coerce.Lookup(rec, "attachments")
	attRecords := coerce.UnwrapList(attachmentsPayload, "attachments")
	attachments := BuildAttachments(id, attRecords, r.now().UTC())

	count, err := repo.ReconcileAttachments(ctx, id, attachments)
	if err != nil {
		return 0, err
	}
	if err := repo.SetTransactionAttachmentCount(ctx, id, count); err != nil {
		return 0, err
	}
	return count, nil
}

// finishGroup records the tenant's sync state, publishes the lifecycle event
// and finalizes the result. last_sync_at only advances on ok/partial.
func (r *Reconciler) finishGroup(ctx context.Context, logger *slog.Logger, runID uuid.UUID, res GroupResult, status string, cause error) GroupResult {
	res.Status = status
	res.Err = cause

	var syncedAt *time.Time
	if status == domain.SyncStatusOK || status == domain.SyncStatusPartial {
		at := r.now().UTC()
		syncedAt = &at
	}

	recordCtx := context.WithoutCancel(ctx)
	if err := r.repo.RecordSyncResult(recordCtx, res.GroupID, status, syncedAt); err != nil {
		logger.Error("failed to record sync state", "error", err)
	}

	if r.publisher != nil {
		routingKey := domain.SyncTenantCompletedKey
		if syncedAt == nil {
			routingKey = domain.SyncTenantFailedKey
		}
		event := domain.SyncTenantEvent{
			EventID:           uuid.New(),
			RunID:             runID,
			CredentialGroupID: res.GroupID,
			Status:            status,
			Accounts:          res.Accounts,
			Transactions:      res.Transactions,
			Attachments:       res.Attachments,
			CompletedAt:       r.now().UTC(),
		}
		if err := r.publisher.PublishSyncTenantEvent(recordCtx, routingKey, event); err != nil {
			logger.Warn("failed to publish sync event", "error", err)
		}
	}

	logger.Info("tenant sync finished",
		"status", status,
		"accounts", res.Accounts,
		"transactions", res.Transactions,
		"attachments", res.Attachments,
	)
	return res
}

// classifyAPIError maps the adapter's failure taxonomy onto sync statuses.
func classifyAPIError(err error) string {
	switch {
	case mercuryclient.IsAuth(err):
		return domain.SyncStatusAuth
	case mercuryclient.IsTransient(err):
		return domain.SyncStatusTransport
	default:
		return domain.SyncStatusError
	}
}

// buildAccount coerces an upstream account record, or returns nil when the
// record has no usable id.
func buildAccount(rec any) *domain.Account {
	id := coerce.String(rec, "id")
	if id == "" {
		return nil
	}
	account := &domain.Account{
		ID:                id,
		Name:              coerce.String(rec, "name"),
		Nickname:          coerce.StringPtr(rec, "nickname"),
		Type:              coerce.StringPtr(rec, "type"),
		Status:            coerce.StringPtr(rec, "status"),
		Currency:          coerce.String(rec, "currency"),
		Kind:              coerce.StringPtr(rec, "kind"),
		LegalBusinessName: coerce.StringPtr(rec, "legalBusinessName"),
	}
	if balance := coerce.DecimalPtr(rec, "currentBalance"); balance != nil {
		account.Balance = balance
	} else {
		account.Balance = coerce.DecimalPtr(rec, "balance")
	}
	account.AvailableBalance = coerce.DecimalPtr(rec, "availableBalance")
	return account
}

// buildTransaction coerces an upstream transaction record. Timestamp fields
// that fail to parse become nil with a warning; the record itself survives.
func buildTransaction(accountID string, rec any) *domain.Transaction {
	tx := &domain.Transaction{
		ID:                    coerce.String(rec, "id"),
		AccountID:             accountID,
		Amount:                coerce.Decimal(rec, "amount"),
		Currency:              coerce.String(rec, "currency"),
		Description:           coerce.StringPtr(rec, "description"),
		BankDescription:       coerce.StringPtr(rec, "bankDescription"),
		ExternalMemo:          coerce.StringPtr(rec, "externalMemo"),
		Note:                  coerce.StringPtr(rec, "note"),
		Kind:                  coerce.StringPtr(rec, "kind"),
		Status:                coerce.String(rec, "status"),
		MercuryCategory:       coerce.StringPtr(rec, "mercuryCategory"),
		CounterpartyName:      coerce.StringPtr(rec, "counterpartyName"),
		CounterpartyNickname:  coerce.StringPtr(rec, "counterpartyNickname"),
		CounterpartyAccount:   coerce.StringPtr(rec, "counterpartyAccount"),
		ReferenceNumber:       coerce.StringPtr(rec, "referenceNumber"),
		ReasonForFailure:      coerce.StringPtr(rec, "reasonForFailure"),
		HasGeneratedReceipt:   coerce.Bool(rec, "hasGeneratedReceipt"),
		PostedAt:              coerce.Time(rec, "postedAt"),
		EstimatedDeliveryDate: coerce.Time(rec, "estimatedDeliveryDate"),
		FailedAt:              coerce.Time(rec, "failedAt"),
	}
	if createdAt := coerce.Time(rec, "createdAt"); createdAt != nil {
		tx.CreatedAt = *createdAt
	}
	return tx
}
