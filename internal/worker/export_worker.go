// Package worker backs committed ledger records up to Google Sheets. It is
// fed by commit events over AMQP and backstopped by a periodic catch-up scan
// for anything a lost message left behind.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"khata/internal/amqp"
	"khata/internal/sheets"
	"khata/internal/storage"
)

type ExportWorker struct {
	store     *storage.SQLiteStore
	backup    sheets.Appender
	batchSize int
}

func NewExportWorker(store *storage.SQLiteStore, backup sheets.Appender, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		backup:    backup,
		batchSize: batchSize,
	}
}

// HandleCommitMessage exports the record named by one AMQP commit event.
func (w *ExportWorker) HandleCommitMessage(ctx context.Context, msg *amqp.RecordCommittedMessage) error {
	id, err := strconv.ParseInt(msg.RecordID, 10, 64)
	if err != nil {
		// Not a SQLite record id; nothing to export from this store.
		slog.WarnContext(ctx, "Skipping event with non-numeric record id",
			"record_id", msg.RecordID, "user_id", msg.UserID)
		return nil
	}
	return w.exportRecord(ctx, id)
}

// ProcessPending exports records the event stream missed, oldest first.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.ListUnexported(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Exporting pending records", "count", len(pending))
	for _, p := range pending {
		if err := w.exportRecord(ctx, p.ID); err != nil {
			return fmt.Errorf("export record %d: %w", p.ID, err)
		}
	}
	return nil
}

// StartupCheck drains the pending backlog once before normal consumption.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	for {
		pending, err := w.store.ListUnexported(ctx, w.batchSize)
		if err != nil {
			return fmt.Errorf("list unexported: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}
		if err := w.ProcessPending(ctx); err != nil {
			return err
		}
	}
}

func (w *ExportWorker) exportRecord(ctx context.Context, id int64) error {
	userID, rec, err := w.store.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}

	if err := w.backup.AppendRecord(ctx, userID, rec); err != nil {
		return fmt.Errorf("append to backup sheet: %w", err)
	}
	if err := w.store.MarkExported(ctx, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	slog.InfoContext(ctx, "Record exported",
		"record_id", id,
		"user_id", userID,
		"kind", string(rec.Kind))
	return nil
}
