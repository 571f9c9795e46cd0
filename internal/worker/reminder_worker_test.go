package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
	"saldo/internal/storage"
)

type fakeNotifier struct {
	published []core.BillReminder
	err       error
}

func (f *fakeNotifier) PublishBillDue(_ context.Context, b core.BillReminder) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, b)
	return nil
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func mkBill(t *testing.T, repo *storage.SQLiteRepository, name string, due time.Time, freq core.Frequency, paid bool) core.BillReminder {
	t.Helper()
	b, err := repo.CreateBillReminder(context.Background(), core.BillReminder{
		OwnerID:    1,
		CategoryID: 9,
		Name:       name,
		Amount:     decimal.RequireFromString("55"),
		DueDate:    due,
		Frequency:  freq,
		IsPaid:     paid,
	})
	if err != nil {
		t.Fatalf("CreateBillReminder(%s): %v", name, err)
	}
	return b
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProcessDueBills_NotifiesDueUnpaid(t *testing.T) {
	repo := newTestRepo(t)
	notifier := &fakeNotifier{}
	w := NewReminderWorker(repo, notifier, 50)

	due := mkBill(t, repo, "overdue rent", day(2024, time.January, 15), core.Monthly, false)
	mkBill(t, repo, "future internet", day(2024, time.February, 15), core.Monthly, false)

	if err := w.ProcessDueBills(context.Background(), day(2024, time.January, 20)); err != nil {
		t.Fatalf("ProcessDueBills: %v", err)
	}

	if len(notifier.published) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.published))
	}
	if notifier.published[0].ID != due.ID {
		t.Errorf("notified the wrong bill: %+v", notifier.published[0])
	}
}

func TestProcessDueBills_RearmsPaidRecurring(t *testing.T) {
	repo := newTestRepo(t)
	w := NewReminderWorker(repo, &fakeNotifier{}, 50)
	ctx := context.Background()

	monthly := mkBill(t, repo, "paid monthly", day(2024, time.January, 10), core.Monthly, true)
	once := mkBill(t, repo, "paid once", day(2024, time.January, 10), core.Once, true)

	if err := w.ProcessDueBills(ctx, day(2024, time.January, 20)); err != nil {
		t.Fatalf("ProcessDueBills: %v", err)
	}

	got, err := repo.GetBillReminder(ctx, monthly.ID)
	if err != nil {
		t.Fatalf("GetBillReminder: %v", err)
	}
	if got.IsPaid {
		t.Error("recurring bill should be unpaid after re-arming")
	}
	if !got.DueDate.Equal(day(2024, time.February, 10)) {
		t.Errorf("expected next occurrence 2024-02-10, got %s", got.DueDate)
	}

	// One-off reminders stay settled.
	got, err = repo.GetBillReminder(ctx, once.ID)
	if err != nil {
		t.Fatalf("GetBillReminder: %v", err)
	}
	if !got.IsPaid || !got.DueDate.Equal(day(2024, time.January, 10)) {
		t.Errorf("one-off bill changed: %+v", got)
	}
}

func TestProcessDueBills_SkipsLongLapsedOccurrences(t *testing.T) {
	repo := newTestRepo(t)
	w := NewReminderWorker(repo, &fakeNotifier{}, 50)
	ctx := context.Background()

	// Paid in October, untouched for months: the next occurrence must land
	// after "now", not in the past.
	b := mkBill(t, repo, "stale weekly", day(2023, time.October, 2), core.Weekly, true)

	if err := w.ProcessDueBills(ctx, day(2024, time.January, 20)); err != nil {
		t.Fatalf("ProcessDueBills: %v", err)
	}

	got, err := repo.GetBillReminder(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBillReminder: %v", err)
	}
	if !got.DueDate.After(day(2024, time.January, 20)) {
		t.Errorf("next occurrence %s not after now", got.DueDate)
	}
	if got.DueDate.Weekday() != day(2023, time.October, 2).Weekday() {
		t.Errorf("weekly cadence broken: %s", got.DueDate)
	}
}

func TestProcessDueBills_NotifierFailureDoesNotAbort(t *testing.T) {
	repo := newTestRepo(t)
	notifier := &fakeNotifier{err: errors.New("broker down")}
	w := NewReminderWorker(repo, notifier, 50)
	ctx := context.Background()

	mkBill(t, repo, "overdue", day(2024, time.January, 15), core.Monthly, false)
	lapsed := mkBill(t, repo, "paid monthly", day(2024, time.January, 10), core.Monthly, true)

	if err := w.ProcessDueBills(ctx, day(2024, time.January, 20)); err != nil {
		t.Fatalf("ProcessDueBills: %v", err)
	}

	// Re-arming still happened despite the notification failure.
	got, err := repo.GetBillReminder(ctx, lapsed.ID)
	if err != nil {
		t.Fatalf("GetBillReminder: %v", err)
	}
	if got.IsPaid {
		t.Error("expected bill re-armed even when notifications fail")
	}
}

func TestProcessDueBills_NilNotifier(t *testing.T) {
	repo := newTestRepo(t)
	w := NewReminderWorker(repo, nil, 50)
	ctx := context.Background()

	mkBill(t, repo, "overdue", day(2024, time.January, 15), core.Monthly, false)
	lapsed := mkBill(t, repo, "paid monthly", day(2024, time.January, 10), core.Monthly, true)

	if err := w.ProcessDueBills(ctx, day(2024, time.January, 20)); err != nil {
		t.Fatalf("ProcessDueBills: %v", err)
	}

	got, err := repo.GetBillReminder(ctx, lapsed.ID)
	if err != nil {
		t.Fatalf("GetBillReminder: %v", err)
	}
	if got.IsPaid {
		t.Error("expected re-arming to work without a notifier")
	}
}
