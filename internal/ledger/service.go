// Package ledger implements the balance-mutation protocol: every change to a
// user's balances happens through an atomic commit of one immutable record
// plus the matching account delta.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"khata/internal/core"
)

// DefaultListLimit bounds transaction listings when the caller passes no limit.
const DefaultListLimit = 20

// Store is the persistence port. CommitRecord must apply the record append
// and the account delta as one indivisible unit: a failed commit leaves
// neither behind. ListRecords returns newest records first; limit <= 0 means
// no limit.
type Store interface {
	GetAccount(ctx context.Context, userID string) (core.Account, error)
	CreateAccount(ctx context.Context, account core.Account) error
	SaveSetup(ctx context.Context, userID string, initialOnline, initialCash core.Money, today string) error
	ResetRollups(ctx context.Context, userID, today string) error
	CommitRecord(ctx context.Context, userID string, rec core.Record, eff core.Effect) (string, error)
	ListRecords(ctx context.Context, userID string, stream core.Stream, limit int) ([]core.Record, error)
}

// EventPublisher receives a notification after every successful commit.
// Publish failures never fail the commit; the record is already durable.
type EventPublisher interface {
	PublishRecordCommitted(ctx context.Context, userID, recordID string) error
}

// Service owns the per-user account lifecycle and the ledger write path.
// The user is always an explicit parameter; the service holds no session
// state, so concurrent multi-user use is safe.
type Service struct {
	store Store
	pub   EventPublisher
	now   func() time.Time
}

type Option func(*Service)

// WithPublisher attaches a commit-event publisher.
func WithPublisher(pub EventPublisher) Option {
	return func(s *Service) { s.pub = pub }
}

// WithClock overrides the wall clock, used by rollover tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAccount creates the account with zero balances if it does not exist
// yet. Idempotent; CreateAccount is a no-op for an existing account, so a
// concurrent double-create cannot corrupt the record.
func (s *Service) EnsureAccount(ctx context.Context, userID string) error {
	_, err := s.store.GetAccount(ctx, userID)
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		account := core.Account{
			UserID:          userID,
			LastUpdatedDate: core.DateOf(s.now()),
		}
		if err := s.store.CreateAccount(ctx, account); err != nil {
			return storageErr("create account", err)
		}
		return nil
	default:
		return storageErr("get account", err)
	}
}

// CompleteSetup records the opening balances and unlocks the write path.
// Calling it again overwrites the previous setup; the original app had no
// re-setup guard and that behavior is kept.
func (s *Service) CompleteSetup(ctx context.Context, userID string, initialOnline, initialCash core.Money) error {
	if err := s.store.SaveSetup(ctx, userID, initialOnline, initialCash, core.DateOf(s.now())); err != nil {
		return storageErr("save setup", err)
	}
	return nil
}

// RolloverIfNeeded zeroes today's rollups when the stored day is not the
// current calendar day. It is a named operation rather than a hidden side
// effect of a read so it can be composed and tested on its own.
func (s *Service) RolloverIfNeeded(ctx context.Context, userID string) error {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return storageErr("get account", err)
	}
	today := core.DateOf(s.now())
	if account.LastUpdatedDate == today {
		return nil
	}
	if err := s.store.ResetRollups(ctx, userID, today); err != nil {
		return storageErr("reset rollups", err)
	}
	return nil
}

// ReadForDisplay returns current balances and today's rollups, rolling the
// day-scoped totals over first if the calendar day changed.
func (s *Service) ReadForDisplay(ctx context.Context, userID string) (core.Balances, error) {
	if err := s.RolloverIfNeeded(ctx, userID); err != nil {
		return core.Balances{}, err
	}
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return core.Balances{}, storageErr("get account", err)
	}
	return core.Balances{
		CurrentOnline: account.CurrentOnline,
		CurrentCash:   account.CurrentCash,
		Total:         account.CurrentOnline.Add(account.CurrentCash),
		TodayIncome:   account.TodayIncome,
		TodayExpense:  account.TodayExpense,
	}, nil
}

// RecordTransaction validates and classifies the intent, then commits the
// record and the balance delta atomically. On any validation failure nothing
// is written.
func (s *Service) RecordTransaction(ctx context.Context, userID string, intent core.Intent) (string, error) {
	if err := intent.Amount.Validate(); err != nil {
		return "", err
	}

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return "", core.ErrSetupRequired
		}
		return "", storageErr("get account", err)
	}
	if !account.SetupDone {
		return "", core.ErrSetupRequired
	}

	eff, err := core.Classify(intent)
	if err != nil {
		return "", err
	}

	now := s.now()
	rec := core.Record{
		Kind:            intent.Kind,
		Amount:          intent.Amount,
		Description:     intent.Description,
		CustomerName:    strings.TrimSpace(intent.CustomerName),
		IsDue:           eff.IsDue,
		IsDueCollection: eff.IsDueCollection,
		CreatedAt:       now,
		Date:            core.DateOf(now),
	}

	recordID, err := s.store.CommitRecord(ctx, userID, rec, eff)
	if err != nil {
		return "", storageErr("commit record", err)
	}

	if s.pub != nil {
		// Best effort; the commit already landed.
		_ = s.pub.PublishRecordCommitted(ctx, userID, recordID)
	}

	return recordID, nil
}

// ListTransactions returns the newest records of the cash or online stream.
func (s *Service) ListTransactions(ctx context.Context, userID string, stream core.Stream, limit int) ([]core.Record, error) {
	if stream != core.StreamCash && stream != core.StreamOnline {
		return nil, fmt.Errorf("stream %q is not listable", stream)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	recs, err := s.store.ListRecords(ctx, userID, stream, limit)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	return recs, nil
}

// DueSummary computes the outstanding total per customer by summing
// uncollected due-add records. Collection records appear in the per-customer
// history but do not reduce the total: the original app never marks a due-add
// collected, and that (questionable) semantic is preserved rather than
// silently repaired.
func (s *Service) DueSummary(ctx context.Context, userID string) ([]core.DueCustomer, error) {
	recs, err := s.store.ListRecords(ctx, userID, core.StreamDue, 0)
	if err != nil {
		return nil, storageErr("list due records", err)
	}

	byName := make(map[string]*core.DueCustomer)
	for _, rec := range recs {
		if rec.CustomerName == "" {
			continue
		}
		entry, ok := byName[rec.CustomerName]
		if !ok {
			entry = &core.DueCustomer{CustomerName: rec.CustomerName}
			byName[rec.CustomerName] = entry
		}
		if rec.IsDue && !rec.IsCollected {
			entry.TotalDue = entry.TotalDue.Add(rec.Amount)
		}
		entry.Transactions = append(entry.Transactions, rec)
	}

	customers := make([]core.DueCustomer, 0, len(byName))
	for _, entry := range byName {
		customers = append(customers, *entry)
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CustomerName < customers[j].CustomerName
	})
	return customers, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrAccountNotFound)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrStorage, op, err)
}
