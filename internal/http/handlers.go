package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"khata/internal/core"
)

// LedgerService is the handler-facing slice of the ledger service.
type LedgerService interface {
	EnsureAccount(ctx context.Context, userID string) error
	CompleteSetup(ctx context.Context, userID string, initialOnline, initialCash core.Money) error
	ReadForDisplay(ctx context.Context, userID string) (core.Balances, error)
	RecordTransaction(ctx context.Context, userID string, intent core.Intent) (string, error)
	ListTransactions(ctx context.Context, userID string, stream core.Stream, limit int) ([]core.Record, error)
	DueSummary(ctx context.Context, userID string) ([]core.DueCustomer, error)
}

type setupRequest struct {
	InitialOnlineCents int64 `json:"initialOnlineCents"`
	InitialCashCents   int64 `json:"initialCashCents"`
}

type transactionRequest struct {
	Type         string `json:"type"`
	AmountCents  int64  `json:"amountCents"`
	Description  string `json:"description"`
	CustomerName string `json:"customerName"`
}

type transactionResponse struct {
	RecordID string `json:"recordId"`
}

type balancesResponse struct {
	CurrentOnlineCents int64 `json:"currentOnlineCents"`
	CurrentCashCents   int64 `json:"currentCashCents"`
	TotalCents         int64 `json:"totalCents"`
	TodayIncomeCents   int64 `json:"todayIncomeCents"`
	TodayExpenseCents  int64 `json:"todayExpenseCents"`
}

type recordView struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	AmountCents     int64  `json:"amountCents"`
	Description     string `json:"description,omitempty"`
	CustomerName    string `json:"customerName,omitempty"`
	IsDue           bool   `json:"isDue,omitempty"`
	IsCollected     bool   `json:"isCollected,omitempty"`
	IsDueCollection bool   `json:"isDueCollection,omitempty"`
	Date            string `json:"date"`
	Timestamp       string `json:"timestamp"`
}

type dueCustomerView struct {
	CustomerName  string       `json:"customerName"`
	TotalDueCents int64        `json:"totalDueCents"`
	Transactions  []recordView `json:"transactions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	if err := s.ledger.EnsureAccount(r.Context(), userID); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCompleteSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InitialOnlineCents < 0 || req.InitialCashCents < 0 {
		writeError(w, http.StatusBadRequest, "initial balances cannot be negative")
		return
	}
	err := s.ledger.CompleteSetup(r.Context(), userID,
		core.Money{Cents: req.InitialOnlineCents},
		core.Money{Cents: req.InitialCashCents})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	balances, err := s.ledger.ReadForDisplay(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balancesResponse{
		CurrentOnlineCents: balances.CurrentOnline.Cents,
		CurrentCashCents:   balances.CurrentCash.Cents,
		TotalCents:         balances.Total.Cents,
		TodayIncomeCents:   balances.TodayIncome.Cents,
		TodayExpenseCents:  balances.TodayExpense.Cents,
	})
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent := core.Intent{
		Kind:         core.Kind(req.Type),
		Amount:       core.Money{Cents: req.AmountCents},
		Description:  strings.TrimSpace(req.Description),
		CustomerName: req.CustomerName,
	}
	recordID, err := s.ledger.RecordTransaction(r.Context(), userID, intent)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionResponse{RecordID: recordID})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	stream := core.Stream(r.URL.Query().Get("stream"))
	if stream != core.StreamCash && stream != core.StreamOnline {
		writeError(w, http.StatusBadRequest, "stream must be cash or online")
		return
	}
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}

	recs, err := s.ledger.ListTransactions(r.Context(), userID, stream, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	views := make([]recordView, len(recs))
	for i, rec := range recs {
		views[i] = toRecordView(rec)
	}
	writeJSON(w, http.StatusOK, map[string][]recordView{"transactions": views})
}

func (s *Server) handleDueSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	customers, err := s.ledger.DueSummary(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	views := make([]dueCustomerView, len(customers))
	for i, c := range customers {
		view := dueCustomerView{
			CustomerName:  c.CustomerName,
			TotalDueCents: c.TotalDue.Cents,
			Transactions:  make([]recordView, len(c.Transactions)),
		}
		for j, rec := range c.Transactions {
			view.Transactions[j] = toRecordView(rec)
		}
		views[i] = view
	}
	writeJSON(w, http.StatusOK, map[string][]dueCustomerView{"customers": views})
}

func toRecordView(rec core.Record) recordView {
	return recordView{
		ID:              rec.ID,
		Type:            string(rec.Kind),
		AmountCents:     rec.Amount.Cents,
		Description:     rec.Description,
		CustomerName:    rec.CustomerName,
		IsDue:           rec.IsDue,
		IsCollected:     rec.IsCollected,
		IsDueCollection: rec.IsDueCollection,
		Date:            rec.Date,
		Timestamp:       rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func pathUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.PathValue("userID"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return "", false
	}
	return userID, true
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrUnknownKind),
		errors.Is(err, core.ErrMissingCustomer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrSetupRequired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, core.ErrStorage):
		writeError(w, http.StatusBadGateway, "storage failure")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
