// Package worker runs the periodic bill-reminder maintenance: notifying
// owners of due bills and re-arming recurring reminders for their next
// occurrence.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/core"
	"saldo/internal/storage"
)

// BillNotifier publishes a notification for a due, unpaid reminder.
type BillNotifier interface {
	PublishBillDue(ctx context.Context, b core.BillReminder) error
}

// ReminderWorker scans bill reminders on a fixed interval.
type ReminderWorker struct {
	storage   *storage.SQLiteRepository
	notifier  BillNotifier
	batchSize int
}

func NewReminderWorker(storage *storage.SQLiteRepository, notifier BillNotifier, batchSize int) *ReminderWorker {
	return &ReminderWorker{
		storage:   storage,
		notifier:  notifier,
		batchSize: batchSize,
	}
}

// Run ticks until the context is cancelled. The first pass happens
// immediately so a restart never delays overdue notifications by a full
// interval.
func (w *ReminderWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.ProcessDueBills(ctx, time.Now()); err != nil {
			slog.ErrorContext(ctx, "Reminder pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Reminder worker stopping")
			return
		case <-ticker.C:
		}
	}
}

// ProcessDueBills runs one maintenance pass: publish a notification for
// every unpaid reminder whose due date has arrived, then roll every paid
// recurring reminder whose cycle has lapsed forward to its next occurrence
// and mark it unpaid again.
func (w *ReminderWorker) ProcessDueBills(ctx context.Context, now time.Time) error {
	if w.storage == nil {
		return fmt.Errorf("worker not properly initialized")
	}

	due, err := w.storage.DueUnpaidBills(ctx, now, w.batchSize)
	if err != nil {
		return fmt.Errorf("load due bills: %w", err)
	}
	notified := 0
	for _, b := range due {
		if w.notifier == nil {
			break
		}
		if err := w.notifier.PublishBillDue(ctx, b); err != nil {
			slog.ErrorContext(ctx, "Failed to publish bill due notification",
				"bill_id", b.ID,
				"owner_id", b.OwnerID,
				"error", err)
			continue
		}
		notified++
	}

	lapsed, err := w.storage.PaidRecurringBillsDueBefore(ctx, now, w.batchSize)
	if err != nil {
		return fmt.Errorf("load lapsed recurring bills: %w", err)
	}
	rearmed := 0
	for _, b := range lapsed {
		next := b.NextDueDate(now)
		if err := w.storage.RescheduleBill(ctx, b.ID, next); err != nil {
			slog.ErrorContext(ctx, "Failed to reschedule recurring bill",
				"bill_id", b.ID,
				"error", err)
			continue
		}
		rearmed++
	}

	if notified > 0 || rearmed > 0 {
		slog.InfoContext(ctx, "Reminder pass completed",
			"notified", notified,
			"rearmed", rearmed)
	}
	return nil
}
