package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"khata/internal/core"
	"khata/internal/memstore"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return NewService(store, opts...), store
}

func setupAccount(t *testing.T, svc *Service, userID string, online, cash int64) {
	t.Helper()
	ctx := context.Background()
	if err := svc.EnsureAccount(ctx, userID); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if err := svc.CompleteSetup(ctx, userID, core.Money{Cents: online}, core.Money{Cents: cash}); err != nil {
		t.Fatalf("CompleteSetup: %v", err)
	}
}

func TestEnsureAccountIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureAccount(ctx, "user-1"); err != nil {
		t.Fatalf("first EnsureAccount: %v", err)
	}
	setupAccount(t, svc, "user-1", 1000, 500)

	// A second ensure must not reset the configured account.
	if err := svc.EnsureAccount(ctx, "user-1"); err != nil {
		t.Fatalf("second EnsureAccount: %v", err)
	}
	account, err := store.GetAccount(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !account.SetupDone || account.CurrentOnline.Cents != 1000 || account.CurrentCash.Cents != 500 {
		t.Errorf("EnsureAccount clobbered configured account: %+v", account)
	}
}

func TestRecordBeforeSetupFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	intent := core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: 100}}

	// No account at all.
	if _, err := svc.RecordTransaction(ctx, "user-1", intent); !errors.Is(err, core.ErrSetupRequired) {
		t.Errorf("no account: error = %v, want ErrSetupRequired", err)
	}

	// Account exists but setup not done.
	if err := svc.EnsureAccount(ctx, "user-1"); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if _, err := svc.RecordTransaction(ctx, "user-1", intent); !errors.Is(err, core.ErrSetupRequired) {
		t.Errorf("setup pending: error = %v, want ErrSetupRequired", err)
	}

	account, _ := store.GetAccount(ctx, "user-1")
	if account.CurrentCash.Cents != 0 || account.TodayIncome.Cents != 0 {
		t.Errorf("rejected write mutated account: %+v", account)
	}
	recs, _ := store.ListRecords(ctx, "user-1", core.StreamCash, 0)
	if len(recs) != 0 {
		t.Errorf("rejected write appended %d records", len(recs))
	}
}

func TestRejectionPaths(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 0, 0)

	tests := []struct {
		name    string
		intent  core.Intent
		wantErr error
	}{
		{"negative amount", core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: -5}}, core.ErrInvalidAmount},
		{"zero amount", core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: 0}}, core.ErrInvalidAmount},
		{"unknown kind", core.Intent{Kind: "bogus", Amount: core.Money{Cents: 10}}, core.ErrUnknownKind},
		{"missing customer", core.Intent{Kind: core.DueAdd, Amount: core.Money{Cents: 100}, CustomerName: ""}, core.ErrMissingCustomer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RecordTransaction(ctx, "user-1", tt.intent); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	balances, err := svc.ReadForDisplay(ctx, "user-1")
	if err != nil {
		t.Fatalf("ReadForDisplay: %v", err)
	}
	if balances.TodayIncome.Cents != 0 || balances.TodayExpense.Cents != 0 {
		t.Errorf("rejected intents touched rollups: %+v", balances)
	}
}

func TestClassificationDeltasApplied(t *testing.T) {
	tests := []struct {
		kind                    core.Kind
		wantOnline, wantCash    int64
		wantIncome, wantExpense int64
	}{
		{core.CashIncome, 1000, 1200, 200, 0},
		{core.CashExpense, 1000, 800, 0, 200},
		{core.OnlineIncome, 1200, 1000, 200, 0},
		{core.OnlineExpense, 800, 1000, 0, 200},
		{core.DueAdd, 1000, 1000, 200, 0},
		{core.DueCollectCash, 1000, 1200, 200, 0},
		{core.DueCollectOnline, 1200, 1000, 200, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()
			setupAccount(t, svc, "user-1", 1000, 1000)

			intent := core.Intent{Kind: tt.kind, Amount: core.Money{Cents: 200}, CustomerName: "Karim"}
			if _, err := svc.RecordTransaction(ctx, "user-1", intent); err != nil {
				t.Fatalf("RecordTransaction: %v", err)
			}

			balances, err := svc.ReadForDisplay(ctx, "user-1")
			if err != nil {
				t.Fatalf("ReadForDisplay: %v", err)
			}
			if balances.CurrentOnline.Cents != tt.wantOnline ||
				balances.CurrentCash.Cents != tt.wantCash ||
				balances.TodayIncome.Cents != tt.wantIncome ||
				balances.TodayExpense.Cents != tt.wantExpense {
				t.Errorf("after %s: got %+v, want online=%d cash=%d income=%d expense=%d",
					tt.kind, balances, tt.wantOnline, tt.wantCash, tt.wantIncome, tt.wantExpense)
			}
		})
	}
}

func TestBalanceConsistencyInvariant(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 10000, 5000)

	intents := []core.Intent{
		{Kind: core.CashIncome, Amount: core.Money{Cents: 300}},
		{Kind: core.CashExpense, Amount: core.Money{Cents: 120}},
		{Kind: core.OnlineIncome, Amount: core.Money{Cents: 990}},
		{Kind: core.OnlineExpense, Amount: core.Money{Cents: 45}},
		{Kind: core.DueAdd, Amount: core.Money{Cents: 700}, CustomerName: "Karim"},
		{Kind: core.DueCollectCash, Amount: core.Money{Cents: 250}, CustomerName: "Karim"},
		{Kind: core.DueCollectOnline, Amount: core.Money{Cents: 150}, CustomerName: "Karim"},
	}
	var wantCash, wantOnline int64
	for _, intent := range intents {
		if _, err := svc.RecordTransaction(ctx, "user-1", intent); err != nil {
			t.Fatalf("RecordTransaction(%s): %v", intent.Kind, err)
		}
		eff, _ := core.Classify(intent)
		wantCash += eff.CashDelta
		wantOnline += eff.OnlineDelta
	}

	account, err := store.GetAccount(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got := account.CurrentCash.Cents - account.InitialCash.Cents; got != wantCash {
		t.Errorf("cash drift: current-initial = %d, signed sum = %d", got, wantCash)
	}
	if got := account.CurrentOnline.Cents - account.InitialOnline.Cents; got != wantOnline {
		t.Errorf("online drift: current-initial = %d, signed sum = %d", got, wantOnline)
	}
}

func TestCommitAtomicityOnStoreFailure(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 1000, 1000)

	store.CommitErr = errors.New("disk full")
	_, err := svc.RecordTransaction(ctx, "user-1", core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: 500}})
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("error = %v, want ErrStorage", err)
	}
	store.CommitErr = nil

	account, _ := store.GetAccount(ctx, "user-1")
	if account.CurrentCash.Cents != 1000 || account.TodayIncome.Cents != 0 {
		t.Errorf("failed commit left a balance delta: %+v", account)
	}
	recs, _ := store.ListRecords(ctx, "user-1", core.StreamCash, 0)
	if len(recs) != 0 {
		t.Errorf("failed commit left %d records", len(recs))
	}
}

func TestRollover(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, store := newTestService(t, WithClock(clock))
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 1000, 1000)

	if _, err := svc.RecordTransaction(ctx, "user-1", core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: 500}}); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	balances, _ := svc.ReadForDisplay(ctx, "user-1")
	if balances.TodayIncome.Cents != 500 {
		t.Fatalf("same-day read reset rollups: %+v", balances)
	}

	// Next calendar day: rollups reset, balances untouched, date stamped.
	now = now.Add(24 * time.Hour)
	balances, err := svc.ReadForDisplay(ctx, "user-1")
	if err != nil {
		t.Fatalf("ReadForDisplay: %v", err)
	}
	if balances.TodayIncome.Cents != 0 || balances.TodayExpense.Cents != 0 {
		t.Errorf("rollups not reset after day change: %+v", balances)
	}
	if balances.CurrentCash.Cents != 1500 {
		t.Errorf("rollover changed balances: %+v", balances)
	}
	account, _ := store.GetAccount(ctx, "user-1")
	if account.LastUpdatedDate != "2026-03-15" {
		t.Errorf("LastUpdatedDate = %q, want 2026-03-15", account.LastUpdatedDate)
	}

	// A fresh transaction starts the new day's rollup from zero.
	if _, err := svc.RecordTransaction(ctx, "user-1", core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: 100}}); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	balances, _ = svc.ReadForDisplay(ctx, "user-1")
	if balances.TodayIncome.Cents != 100 {
		t.Errorf("TodayIncome after rollover = %d, want 100", balances.TodayIncome.Cents)
	}
}

func TestListTransactions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 0, 0)

	for i := 1; i <= 25; i++ {
		intent := core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: int64(i)}}
		if _, err := svc.RecordTransaction(ctx, "user-1", intent); err != nil {
			t.Fatalf("RecordTransaction #%d: %v", i, err)
		}
	}

	recs, err := svc.ListTransactions(ctx, "user-1", core.StreamCash, 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(recs) != DefaultListLimit {
		t.Fatalf("default limit: got %d records, want %d", len(recs), DefaultListLimit)
	}
	if recs[0].Amount.Cents != 25 || recs[1].Amount.Cents != 24 {
		t.Errorf("records not newest first: %d, %d", recs[0].Amount.Cents, recs[1].Amount.Cents)
	}

	if _, err := svc.ListTransactions(ctx, "user-1", core.StreamDue, 5); err == nil {
		t.Error("due stream should not be listable through ListTransactions")
	}
}

func TestDueSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 0, 0)

	add := func(kind core.Kind, cents int64, customer string) {
		t.Helper()
		intent := core.Intent{Kind: kind, Amount: core.Money{Cents: cents}, CustomerName: customer}
		if _, err := svc.RecordTransaction(ctx, "user-1", intent); err != nil {
			t.Fatalf("RecordTransaction(%s): %v", kind, err)
		}
	}
	add(core.DueAdd, 300, "Karim")
	add(core.DueAdd, 150, "Karim")
	add(core.DueAdd, 80, "Rahim")

	customers, err := svc.DueSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("DueSummary: %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("got %d customers, want 2", len(customers))
	}
	karim := customers[0]
	if karim.CustomerName != "Karim" || karim.TotalDue.Cents != 450 {
		t.Errorf("Karim total = %+v, want 450", karim)
	}
	if len(karim.Transactions) != 2 || karim.Transactions[0].Amount.Cents != 150 {
		t.Errorf("Karim history not newest first: %+v", karim.Transactions)
	}

	// Collection adds history but does not shrink the outstanding total.
	add(core.DueCollectCash, 450, "Karim")
	customers, err = svc.DueSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("DueSummary after collection: %v", err)
	}
	karim = customers[0]
	if karim.TotalDue.Cents != 450 {
		t.Errorf("collection changed TotalDue: got %d, want 450", karim.TotalDue.Cents)
	}
	if len(karim.Transactions) != 3 || !karim.Transactions[0].IsDueCollection {
		t.Errorf("collection record missing from history: %+v", karim.Transactions)
	}
}

func TestCustomerNameTrimmedOnRecord(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 0, 0)

	intent := core.Intent{Kind: core.DueAdd, Amount: core.Money{Cents: 100}, CustomerName: "  Karim  "}
	if _, err := svc.RecordTransaction(ctx, "user-1", intent); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	recs, _ := store.ListRecords(ctx, "user-1", core.StreamDue, 0)
	if len(recs) != 1 || recs[0].CustomerName != "Karim" {
		t.Errorf("customer name not trimmed: %+v", recs)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupAccount(t, svc, "user-1", 1000, 1000)
	setupAccount(t, svc, "user-2", 0, 0)

	if _, err := svc.RecordTransaction(ctx, "user-1", core.Intent{Kind: core.CashIncome, Amount: core.Money{Cents: 777}}); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	balances, err := svc.ReadForDisplay(ctx, "user-2")
	if err != nil {
		t.Fatalf("ReadForDisplay: %v", err)
	}
	if balances.CurrentCash.Cents != 0 || balances.TodayIncome.Cents != 0 {
		t.Errorf("user-1 write leaked into user-2: %+v", balances)
	}
}
