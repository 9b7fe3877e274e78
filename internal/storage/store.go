// Package storage is the SQLite ledger store. The record append and the
// account delta are applied inside one SQL transaction, which is what makes
// the ledger commit all-or-nothing.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"khata/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (core.Account, error) {
	const query = `
		SELECT user_id, initial_online_cents, initial_cash_cents,
		       current_online_cents, current_cash_cents,
		       today_income_cents, today_expense_cents,
		       setup_done, last_updated_date
		FROM accounts WHERE user_id = ?`

	var (
		account   core.Account
		setupDone int64
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&account.UserID,
		&account.InitialOnline.Cents, &account.InitialCash.Cents,
		&account.CurrentOnline.Cents, &account.CurrentCash.Cents,
		&account.TodayIncome.Cents, &account.TodayExpense.Cents,
		&setupDone, &account.LastUpdatedDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	account.SetupDone = setupDone != 0
	return account, nil
}

// CreateAccount inserts the zeroed account row. INSERT OR IGNORE keeps a
// concurrent double-create from duplicating or clobbering the row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account core.Account) error {
	const query = `
		INSERT OR IGNORE INTO accounts (user_id, last_updated_date)
		VALUES (?, ?)`

	if _, err := s.db.ExecContext(ctx, query, account.UserID, account.LastUpdatedDate); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSetup(ctx context.Context, userID string, initialOnline, initialCash core.Money, today string) error {
	const query = `
		UPDATE accounts SET
			initial_online_cents = ?, initial_cash_cents = ?,
			current_online_cents = ?, current_cash_cents = ?,
			today_income_cents = 0, today_expense_cents = 0,
			setup_done = 1, last_updated_date = ?
		WHERE user_id = ?`

	res, err := s.db.ExecContext(ctx, query,
		initialOnline.Cents, initialCash.Cents,
		initialOnline.Cents, initialCash.Cents,
		today, userID)
	if err != nil {
		return fmt.Errorf("save setup: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrAccountNotFound
	}

	slog.InfoContext(ctx, "Initial balances saved",
		"user_id", userID,
		"initial_online_cents", initialOnline.Cents,
		"initial_cash_cents", initialCash.Cents)
	return nil
}

func (s *SQLiteStore) ResetRollups(ctx context.Context, userID, today string) error {
	const query = `
		UPDATE accounts SET
			today_income_cents = 0, today_expense_cents = 0,
			last_updated_date = ?
		WHERE user_id = ?`

	res, err := s.db.ExecContext(ctx, query, today, userID)
	if err != nil {
		return fmt.Errorf("reset rollups: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

// CommitRecord applies the account delta and appends the record in one SQL
// transaction. Either both land or neither does.
func (s *SQLiteStore) CommitRecord(ctx context.Context, userID string, rec core.Record, eff core.Effect) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	const updateQuery = `
		UPDATE accounts SET
			current_online_cents = current_online_cents + ?,
			current_cash_cents   = current_cash_cents + ?,
			today_income_cents   = today_income_cents + ?,
			today_expense_cents  = today_expense_cents + ?
		WHERE user_id = ?`

	res, err := tx.ExecContext(ctx, updateQuery,
		eff.OnlineDelta, eff.CashDelta, eff.IncomeDelta, eff.ExpenseDelta, userID)
	if err != nil {
		return "", fmt.Errorf("apply balance delta: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", core.ErrAccountNotFound
	}

	const insertQuery = `
		INSERT INTO records (user_id, stream, kind, amount_cents, description,
			customer_name, is_due, is_collected, is_due_collection, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ins, err := tx.ExecContext(ctx, insertQuery,
		userID, string(eff.Stream), string(rec.Kind), rec.Amount.Cents,
		rec.Description, rec.CustomerName,
		boolInt(rec.IsDue), boolInt(rec.IsCollected), boolInt(rec.IsDueCollection),
		rec.Date, rec.CreatedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("append record: %w", err)
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("record id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Ledger record committed",
		"user_id", userID,
		"record_id", id,
		"kind", string(rec.Kind),
		"stream", string(eff.Stream),
		"amount_cents", rec.Amount.Cents)
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, userID string, stream core.Stream, limit int) ([]core.Record, error) {
	query := `
		SELECT id, kind, amount_cents, description, customer_name,
		       is_due, is_collected, is_due_collection, date, created_at
		FROM records
		WHERE user_id = ? AND stream = ?
		ORDER BY id DESC`
	args := []any{userID, string(stream)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

// GetRecord fetches a single record by id for the export worker.
func (s *SQLiteStore) GetRecord(ctx context.Context, id int64) (string, core.Record, error) {
	const query = `
		SELECT user_id, id, kind, amount_cents, description, customer_name,
		       is_due, is_collected, is_due_collection, date, created_at
		FROM records WHERE id = ?`

	var userID string
	row := s.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecordWith(row.Scan, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.Record{}, fmt.Errorf("record %d not found", id)
	}
	if err != nil {
		return "", core.Record{}, fmt.Errorf("get record: %w", err)
	}
	return userID, rec, nil
}

// ExportedRecord is the minimal view the export worker needs for catch-up.
type ExportedRecord struct {
	ID     int64
	UserID string
}

// ListUnexported returns record ids that have not been backed up yet,
// oldest first.
func (s *SQLiteStore) ListUnexported(ctx context.Context, limit int) ([]ExportedRecord, error) {
	const query = `
		SELECT id, user_id FROM records
		WHERE exported = 0
		ORDER BY id ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported: %w", err)
	}
	defer rows.Close()

	var out []ExportedRecord
	for rows.Next() {
		var er ExportedRecord
		if err := rows.Scan(&er.ID, &er.UserID); err != nil {
			return nil, fmt.Errorf("scan unexported: %w", err)
		}
		out = append(out, er)
	}
	return out, rows.Err()
}

// MarkExported flags a record as backed up. The marker is bookkeeping for
// the worker and never touches ledger fields.
func (s *SQLiteStore) MarkExported(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE records SET exported = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (core.Record, error) {
	return scanRecordWith(rows.Scan, nil)
}

func scanRecordWith(scan func(...any) error, userID *string) (core.Record, error) {
	var (
		rec                     core.Record
		id                      int64
		kind                    string
		due, collected, dueColl int64
		createdAt               time.Time
	)
	dest := []any{}
	if userID != nil {
		dest = append(dest, userID)
	}
	dest = append(dest, &id, &kind, &rec.Amount.Cents, &rec.Description, &rec.CustomerName,
		&due, &collected, &dueColl, &rec.Date, &createdAt)
	if err := scan(dest...); err != nil {
		return core.Record{}, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.Kind = core.Kind(kind)
	rec.IsDue = due != 0
	rec.IsCollected = collected != 0
	rec.IsDueCollection = dueColl != 0
	rec.CreatedAt = createdAt
	return rec, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
