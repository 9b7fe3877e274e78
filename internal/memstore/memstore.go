// Package memstore is an in-memory ledger.Store used as the dev backend and
// as the test double for the ledger service. Commits are applied under one
// lock so the all-or-nothing contract holds, and a settable commit error
// lets tests simulate storage failure with no partial state.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"khata/internal/core"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]core.Account
	records  map[string]map[core.Stream][]core.Record
	nextID   int64

	// CommitErr, when set, makes the next CommitRecord calls fail without
	// touching any state.
	CommitErr error
}

func New() *Store {
	return &Store{
		accounts: make(map[string]core.Account),
		records:  make(map[string]map[core.Stream][]core.Record),
	}
}

func (s *Store) GetAccount(_ context.Context, userID string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return core.Account{}, core.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) CreateAccount(_ context.Context, account core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return nil
	}
	s.accounts[account.UserID] = account
	return nil
}

func (s *Store) SaveSetup(_ context.Context, userID string, initialOnline, initialCash core.Money, today string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return core.ErrAccountNotFound
	}
	account.InitialOnline = initialOnline
	account.InitialCash = initialCash
	account.CurrentOnline = initialOnline
	account.CurrentCash = initialCash
	account.TodayIncome = core.Money{}
	account.TodayExpense = core.Money{}
	account.SetupDone = true
	account.LastUpdatedDate = today
	s.accounts[userID] = account
	return nil
}

func (s *Store) ResetRollups(_ context.Context, userID, today string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return core.ErrAccountNotFound
	}
	account.TodayIncome = core.Money{}
	account.TodayExpense = core.Money{}
	account.LastUpdatedDate = today
	s.accounts[userID] = account
	return nil
}

func (s *Store) CommitRecord(_ context.Context, userID string, rec core.Record, eff core.Effect) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CommitErr != nil {
		return "", s.CommitErr
	}
	account, ok := s.accounts[userID]
	if !ok {
		return "", core.ErrAccountNotFound
	}

	account.CurrentOnline.Cents += eff.OnlineDelta
	account.CurrentCash.Cents += eff.CashDelta
	account.TodayIncome.Cents += eff.IncomeDelta
	account.TodayExpense.Cents += eff.ExpenseDelta
	s.accounts[userID] = account

	s.nextID++
	rec.ID = strconv.FormatInt(s.nextID, 10)
	if s.records[userID] == nil {
		s.records[userID] = make(map[core.Stream][]core.Record)
	}
	s.records[userID][eff.Stream] = append(s.records[userID][eff.Stream], rec)
	return rec.ID, nil
}

func (s *Store) ListRecords(_ context.Context, userID string, stream core.Stream, limit int) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.records[userID][stream]
	out := make([]core.Record, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, stored[i])
	}
	return out, nil
}
