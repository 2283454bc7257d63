package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/store"
)

// syncRecord captures one RecordSyncResult call for assertions.
type syncRecord struct {
	groupID  int64
	status   string
	syncedAt *time.Time
}

// stubRepository is an in-memory store.Repository for app-layer tests. It
// mirrors the SQL repository's semantics where the reconciler depends on
// them: failed transactions are immutable and attachment reconciliation
// replaces the stored set.
type stubRepository struct {
	mu sync.Mutex

	groups       []domain.CredentialGroup
	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	attachments  map[string][]domain.Attachment
	policies     []*domain.ReceiptPolicy
	nextPolicyID int64
	syncRecords  []syncRecord

	upsertTransactionErr error
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
		attachments:  make(map[string][]domain.Attachment),
	}
}

func (s *stubRepository) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	return fn(s)
}

func (s *stubRepository) GetActiveCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CredentialGroup, len(s.groups))
	copy(out, s.groups)
	return out, nil
}

func (s *stubRepository) ListCredentialGroups(ctx context.Context) ([]domain.CredentialGroup, error) {
	return s.GetActiveCredentialGroups(ctx)
}

func (s *stubRepository) RecordSyncResult(ctx context.Context, groupID int64, status string, syncedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncRecords = append(s.syncRecords, syncRecord{groupID: groupID, status: status, syncedAt: syncedAt})
	return nil
}

func (s *stubRepository) UpsertAccount(ctx context.Context, groupID int64, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	cp.CredentialGroupID = &groupID
	s.accounts[cp.ID] = &cp
	return nil
}

func (s *stubRepository) ListAccountsByCredentialGroup(ctx context.Context, groupID int64) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Account
	for _, acc := range s.accounts {
		if acc.CredentialGroupID != nil && *acc.CredentialGroupID == groupID {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (s *stubRepository) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *stubRepository) UpsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertTransactionErr != nil {
		return s.upsertTransactionErr
	}
	if existing, ok := s.transactions[tx.ID]; ok {
		if existing.Status == domain.TransactionStatusFailed {
			return nil
		}
		merged := *tx
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
		merged.NumberOfAttachments = existing.NumberOfAttachments
		s.transactions[tx.ID] = &merged
		return nil
	}
	cp := *tx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.transactions[cp.ID] = &cp
	return nil
}

func (s *stubRepository) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *stubRepository) SetTransactionAttachmentCount(ctx context.Context, transactionID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.transactions[transactionID]; ok && tx.Status != domain.TransactionStatusFailed {
		tx.NumberOfAttachments = count
	}
	return nil
}

func (s *stubRepository) ListTransactionsByStatus(ctx context.Context, accountID string, statuses []string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := make(map[string]bool, len(statuses))
	for _, st := range store.ExpandStatusFilter(statuses) {
		allowed[st] = true
	}
	var out []domain.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && allowed[tx.Status] {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *stubRepository) ReconcileAttachments(ctx context.Context, transactionID string, attachments []domain.Attachment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make([]domain.Attachment, len(attachments))
	copy(set, attachments)
	s.attachments[transactionID] = set
	return len(set), nil
}

func (s *stubRepository) ListAttachments(ctx context.Context, transactionID string) ([]domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attachment, len(s.attachments[transactionID]))
	copy(out, s.attachments[transactionID])
	return out, nil
}

func (s *stubRepository) InsertReceiptPolicy(ctx context.Context, policy *domain.ReceiptPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPolicyID++
	policy.ID = s.nextPolicyID
	cp := *policy
	s.policies = append(s.policies, &cp)
	return nil
}

func (s *stubRepository) CloseReceiptPolicy(ctx context.Context, policyID int64, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.policies {
		if p.ID == policyID {
			e := end
			p.EndDate = &e
			return nil
		}
	}
	return store.ErrPolicyNotFound
}

func (s *stubRepository) GetEffectivePolicy(ctx context.Context, accountID string, at time.Time) (*domain.ReceiptPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.ReceiptPolicy
	for _, p := range s.policies {
		if p.AccountID != accountID || p.StartDate.After(at) {
			continue
		}
		if p.EndDate != nil && !p.EndDate.After(at) {
			continue
		}
		if best == nil || p.StartDate.After(best.StartDate) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *stubRepository) ListReceiptPolicies(ctx context.Context, accountID string) ([]domain.ReceiptPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ReceiptPolicy
	for _, p := range s.policies {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// reportable mirrors the SQL report filter for the in-memory store.
func (s *stubRepository) reportable(tx *domain.Transaction, from, to time.Time) bool {
	acc, ok := s.accounts[tx.AccountID]
	excluded := ok && acc.ExcludeFromReports
	if !store.CountsTowardReports(tx.Status, excluded) {
		return false
	}
	at := tx.EffectiveDate()
	return !at.Before(from) && at.Before(to)
}

func (s *stubRepository) MonthlyTotals(ctx context.Context, from, to time.Time) ([]store.MonthlyTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMonth := make(map[time.Time]*store.MonthlyTotal)
	for _, tx := range s.transactions {
		if !s.reportable(tx, from, to) {
			continue
		}
		at := tx.EffectiveDate()
		month := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		total := byMonth[month]
		if total == nil {
			total = &store.MonthlyTotal{Month: month}
			byMonth[month] = total
		}
		if tx.Amount.IsPositive() {
			total.Deposits = total.Deposits.Add(tx.Amount)
		} else {
			total.Charges = total.Charges.Add(tx.Amount)
		}
		total.Count++
	}

	var totals []store.MonthlyTotal
	for _, total := range byMonth {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Month.Before(totals[j].Month) })
	return totals, nil
}

func (s *stubRepository) AccountSummaries(ctx context.Context, from, to time.Time) ([]store.AccountSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var summaries []store.AccountSummary
	for _, id := range ids {
		acc := s.accounts[id]
		summary := store.AccountSummary{
			AccountID: acc.ID,
			Name:      acc.Name,
			Currency:  acc.Currency,
			Balance:   acc.Balance,
		}
		for _, tx := range s.transactions {
			if tx.AccountID != acc.ID || !s.reportable(tx, from, to) {
				continue
			}
			summary.Transactions++
			if tx.Amount.IsPositive() {
				summary.Deposits = summary.Deposits.Add(tx.Amount)
			} else {
				summary.Charges = summary.Charges.Add(tx.Amount)
			}
			at := tx.EffectiveDate()
			if summary.LastActivity == nil || at.After(*summary.LastActivity) {
				last := at
				summary.LastActivity = &last
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
