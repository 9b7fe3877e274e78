package core

import "strings"

const (
	CashIncome       Kind = "cash-income"
	CashExpense      Kind = "cash-expense"
	OnlineIncome     Kind = "online-income"
	OnlineExpense    Kind = "online-expense"
	DueAdd           Kind = "due-add"
	DueCollectCash   Kind = "due-collect-cash"
	DueCollectOnline Kind = "due-collect-online"
)

type (
	// Kind is the closed set of transaction kinds.
	Kind string

	// Intent is a request to record one transaction. CustomerName is
	// meaningful only for the due kinds.
	Intent struct {
		Kind         Kind
		Amount       Money
		Description  string
		CustomerName string
	}

	// Effect is the classified consequence of an intent: which stream the
	// record lands in, the signed balance deltas, the day-rollup deltas and
	// the flags carried by the record itself. Signs are derived from the
	// kind; Intent.Amount is always positive.
	Effect struct {
		Stream          Stream
		OnlineDelta     int64
		CashDelta       int64
		IncomeDelta     int64
		ExpenseDelta    int64
		IsDue           bool
		IsDueCollection bool
	}
)

func (k Kind) IsValid() bool {
	switch k {
	case CashIncome, CashExpense, OnlineIncome, OnlineExpense,
		DueAdd, DueCollectCash, DueCollectOnline:
		return true
	}
	return false
}

// RequiresCustomer reports whether records of this kind identify a counterparty.
func (k Kind) RequiresCustomer() bool {
	switch k {
	case DueAdd, DueCollectCash, DueCollectOnline:
		return true
	}
	return false
}

// Classify maps an intent to its effect. It does not validate the amount;
// callers check Amount.Validate first so ErrInvalidAmount wins over kind
// errors.
func Classify(in Intent) (Effect, error) {
	a := in.Amount.Cents
	switch in.Kind {
	case CashIncome:
		return Effect{Stream: StreamCash, CashDelta: a, IncomeDelta: a}, nil
	case CashExpense:
		return Effect{Stream: StreamCash, CashDelta: -a, ExpenseDelta: a}, nil
	case OnlineIncome:
		return Effect{Stream: StreamOnline, OnlineDelta: a, IncomeDelta: a}, nil
	case OnlineExpense:
		return Effect{Stream: StreamOnline, OnlineDelta: -a, ExpenseDelta: a}, nil
	case DueAdd:
		if strings.TrimSpace(in.CustomerName) == "" {
			return Effect{}, ErrMissingCustomer
		}
		// Credit extended counts toward today's income but touches no balance.
		return Effect{Stream: StreamDue, IncomeDelta: a, IsDue: true}, nil
	case DueCollectCash:
		if strings.TrimSpace(in.CustomerName) == "" {
			return Effect{}, ErrMissingCustomer
		}
		return Effect{Stream: StreamDue, CashDelta: a, IncomeDelta: a, IsDueCollection: true}, nil
	case DueCollectOnline:
		if strings.TrimSpace(in.CustomerName) == "" {
			return Effect{}, ErrMissingCustomer
		}
		return Effect{Stream: StreamDue, OnlineDelta: a, IncomeDelta: a, IsDueCollection: true}, nil
	default:
		return Effect{}, ErrUnknownKind
	}
}
