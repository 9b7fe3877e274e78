package core

import (
	"errors"
	"time"
)

type (
	// Money is an amount in the smallest currency unit (poisha).
	Money struct {
		Cents int64
	}

	// Stream names one of the three partitioned transaction logs.
	Stream string

	// Account is the per-user aggregate. Initial balances are written once
	// at setup; current balances change only through committed records.
	Account struct {
		UserID          string
		InitialOnline   Money
		InitialCash     Money
		CurrentOnline   Money
		CurrentCash     Money
		TodayIncome     Money
		TodayExpense    Money
		SetupDone       bool
		LastUpdatedDate string // calendar day (YYYY-MM-DD) the rollups are valid for
	}

	// Record is one committed ledger entry. Immutable once written; due
	// settlement is a new record, never an update of the original.
	Record struct {
		ID              string
		Kind            Kind
		Amount          Money
		Description     string
		CustomerName    string
		IsDue           bool
		IsCollected     bool
		IsDueCollection bool
		CreatedAt       time.Time
		Date            string // calendar day, fallback ordering when CreatedAt is pending
	}

	// Balances is the display view of an account after rollover.
	Balances struct {
		CurrentOnline Money
		CurrentCash   Money
		Total         Money
		TodayIncome   Money
		TodayExpense  Money
	}

	// DueCustomer is the derived outstanding-due aggregate for one customer.
	DueCustomer struct {
		CustomerName string
		TotalDue     Money
		Transactions []Record
	}
)

const (
	StreamCash   Stream = "cash"
	StreamOnline Stream = "online"
	StreamDue    Stream = "due"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrSetupRequired   = errors.New("initial balance setup required")
	ErrUnknownKind     = errors.New("unknown transaction kind")
	ErrMissingCustomer = errors.New("customer name required")
	ErrStorage         = errors.New("storage failure")
	ErrAccountNotFound = errors.New("account not found")
)

// DateOf formats t as the calendar-day string used for rollover comparison.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m plus o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (s Stream) IsValid() bool {
	switch s {
	case StreamCash, StreamOnline, StreamDue:
		return true
	}
	return false
}
