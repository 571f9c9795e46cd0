package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func mustAccount(t *testing.T, repo *SQLiteRepository, ownerID int64, name, balance string) core.Account {
	t.Helper()
	a, err := repo.CreateAccount(context.Background(), core.Account{
		OwnerID: ownerID,
		Name:    name,
		Kind:    core.Checking,
		Balance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAccountRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := mustAccount(t, repo, 1, "Checking", "123.45")
	if created.ID == 0 {
		t.Fatal("expected a generated id")
	}

	got, err := repo.GetAccount(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Name != "Checking" || got.Kind != core.Checking {
		t.Errorf("unexpected account %+v", got)
	}
	if !got.Balance.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("balance round-trip lost precision: %s", got.Balance)
	}

	if _, err := repo.GetAccount(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAccounts_OwnerScopedAndSorted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustAccount(t, repo, 1, "Zeta", "0")
	mustAccount(t, repo, 1, "Alpha", "0")
	mustAccount(t, repo, 2, "Other", "0")

	accounts, err := repo.ListAccounts(ctx, 1)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Name != "Alpha" || accounts[1].Name != "Zeta" {
		t.Errorf("expected name ordering, got %q then %q", accounts[0].Name, accounts[1].Name)
	}
}

func TestApplyDeltas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", "100")
	b := mustAccount(t, repo, 1, "B", "100")

	err := repo.WithTx(ctx, func(tx *sql.Tx) error {
		return repo.ApplyDeltas(ctx, tx, core.DeltaMap{
			a.ID: decimal.RequireFromString("-30.25"),
			b.ID: decimal.RequireFromString("30.25"),
		})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	gotA, _ := repo.GetAccount(ctx, a.ID)
	gotB, _ := repo.GetAccount(ctx, b.ID)
	if !gotA.Balance.Equal(decimal.RequireFromString("69.75")) {
		t.Errorf("account A balance %s", gotA.Balance)
	}
	if !gotB.Balance.Equal(decimal.RequireFromString("130.25")) {
		t.Errorf("account B balance %s", gotB.Balance)
	}
}

func TestApplyDeltas_UnknownAccountRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", "100")

	err := repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := repo.ApplyDeltas(ctx, tx, core.DeltaMap{a.ID: decimal.RequireFromString("-10")}); err != nil {
			return err
		}
		return repo.ApplyDeltas(ctx, tx, core.DeltaMap{9999: decimal.RequireFromString("10")})
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The first delta must have been rolled back with the failed one.
	got, _ := repo.GetAccount(ctx, a.ID)
	if !got.Balance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected untouched balance, got %s", got.Balance)
	}
}

func TestCategoriesSeeded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	categories, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != 14 {
		t.Fatalf("expected 14 seeded categories, got %d", len(categories))
	}

	salary, err := repo.GetCategory(ctx, 1)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if salary.Name != "Salary" || salary.Kind != core.CategoryIncome {
		t.Errorf("unexpected first category %+v", salary)
	}
}

func TestMovementRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", "0")
	b := mustAccount(t, repo, 1, "B", "0")

	var inserted core.Movement
	err := repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = repo.InsertMovement(ctx, tx, core.Movement{
			OwnerID:     1,
			CategoryID:  14,
			AccountID:   a.ID,
			ToAccountID: &b.ID,
			Kind:        core.Transfer,
			Amount:      decimal.RequireFromString("42.42"),
			Description: "to savings",
			Date:        day(2024, time.May, 17),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetMovement(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("GetMovement: %v", err)
	}
	if got.ToAccountID == nil || *got.ToAccountID != b.ID {
		t.Errorf("lost to_account_id: %+v", got.ToAccountID)
	}
	if !got.Amount.Equal(decimal.RequireFromString("42.42")) {
		t.Errorf("amount %s", got.Amount)
	}
	if !got.Date.Equal(day(2024, time.May, 17)) {
		t.Errorf("date %s", got.Date)
	}
	if !got.CreatedAt.Equal(inserted.CreatedAt) {
		t.Errorf("created_at changed: %s vs %s", got.CreatedAt, inserted.CreatedAt)
	}
}

func TestCreatedAtTieBreak_SubSecondPrecision(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", "0")

	insert := func(desc string) core.Movement {
		var m core.Movement
		err := repo.WithTx(ctx, func(tx *sql.Tx) error {
			var err error
			m, err = repo.InsertMovement(ctx, tx, core.Movement{
				OwnerID:     1,
				CategoryID:  5,
				AccountID:   a.ID,
				Kind:        core.Expense,
				Amount:      decimal.RequireFromString("5"),
				Description: desc,
				Date:        day(2024, time.July, 1),
			})
			return err
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		return m
	}

	setCreatedAt := func(id int64, ts time.Time) {
		if _, err := repo.db.ExecContext(ctx,
			`UPDATE movements SET created_at = ? WHERE id = ?`,
			ts.Format(createdAtLayout), id); err != nil {
			t.Fatalf("set created_at: %v", err)
		}
	}

	// Same date, sub-second apart; the later timestamp's fraction has fewer
	// significant digits than the earlier one's.
	later := insert("later")
	earlier := insert("earlier")
	setCreatedAt(later.ID, time.Date(2024, time.July, 1, 10, 0, 5, 120_000_000, time.UTC))
	setCreatedAt(earlier.ID, time.Date(2024, time.July, 1, 10, 0, 5, 100_000_000, time.UTC))

	recent, err := repo.RecentMovements(ctx, 1, 10)
	if err != nil {
		t.Fatalf("RecentMovements: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(recent))
	}
	if recent[0].ID != later.ID || recent[1].ID != earlier.ID {
		t.Errorf("newest-first order broken: got %q then %q",
			recent[0].Description, recent[1].Description)
	}

	movements, _, err := repo.ListMovements(ctx, 1, MovementFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if movements[0].ID != later.ID {
		t.Errorf("ListMovements tie-break broken: got %q first", movements[0].Description)
	}
}

func TestCreatedAtLayoutCollatesChronologically(t *testing.T) {
	base := time.Date(2024, time.July, 1, 10, 0, 5, 0, time.UTC)
	prev := base.Format(createdAtLayout)
	for _, nanos := range []int{1, 100, 100_000, 100_000_000, 120_000_000, 999_999_999} {
		cur := base.Add(time.Duration(nanos)).Format(createdAtLayout)
		if prev >= cur {
			t.Fatalf("stored strings out of order: %q >= %q", prev, cur)
		}
		prev = cur
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", "0")
	err := repo.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := repo.InsertMovement(ctx, tx, core.Movement{
			OwnerID:     1,
			CategoryID:  5,
			AccountID:   a.ID,
			Kind:        core.Expense,
			Amount:      decimal.RequireFromString("7"),
			Description: "snack",
			Date:        day(2024, time.May, 17),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	movements, total, err := repo.ListMovements(ctx, 1, MovementFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if total != 0 || len(movements) != 0 {
		t.Errorf("expected cascade delete, got %d movements", total)
	}
}

func TestBillScheduling(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mkBill := func(name string, due time.Time, freq core.Frequency, paid bool) core.BillReminder {
		b, err := repo.CreateBillReminder(ctx, core.BillReminder{
			OwnerID:    1,
			CategoryID: 9,
			Name:       name,
			Amount:     decimal.RequireFromString("60"),
			DueDate:    due,
			Frequency:  freq,
			IsPaid:     paid,
		})
		if err != nil {
			t.Fatalf("CreateBillReminder(%s): %v", name, err)
		}
		return b
	}

	now := day(2024, time.January, 20)
	overdue := mkBill("overdue", day(2024, time.January, 15), core.Monthly, false)
	mkBill("future", day(2024, time.February, 15), core.Monthly, false)
	lapsedPaid := mkBill("lapsed paid", day(2024, time.January, 10), core.Monthly, true)
	mkBill("lapsed once", day(2024, time.January, 10), core.Once, true)

	due, err := repo.DueUnpaidBills(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueUnpaidBills: %v", err)
	}
	if len(due) != 1 || due[0].ID != overdue.ID {
		t.Fatalf("expected only the overdue bill, got %d", len(due))
	}

	lapsed, err := repo.PaidRecurringBillsDueBefore(ctx, now, 10)
	if err != nil {
		t.Fatalf("PaidRecurringBillsDueBefore: %v", err)
	}
	if len(lapsed) != 1 || lapsed[0].ID != lapsedPaid.ID {
		t.Fatalf("expected only the lapsed recurring bill, got %d", len(lapsed))
	}

	if err := repo.RescheduleBill(ctx, lapsedPaid.ID, day(2024, time.February, 10)); err != nil {
		t.Fatalf("RescheduleBill: %v", err)
	}
	got, err := repo.GetBillReminder(ctx, lapsedPaid.ID)
	if err != nil {
		t.Fatalf("GetBillReminder: %v", err)
	}
	if got.IsPaid {
		t.Error("rescheduled bill should be unpaid again")
	}
	if !got.DueDate.Equal(day(2024, time.February, 10)) {
		t.Errorf("due date %s", got.DueDate)
	}

	upcoming, err := repo.UpcomingBills(ctx, 1, now, now.AddDate(0, 0, 30), 10)
	if err != nil {
		t.Fatalf("UpcomingBills: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 upcoming bills, got %d", len(upcoming))
	}
	if upcoming[0].Name != "lapsed paid" || upcoming[1].Name != "future" {
		t.Errorf("unexpected order: %q then %q", upcoming[0].Name, upcoming[1].Name)
	}
}

func TestAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", "100")
	mustAccount(t, repo, 1, "B", "-20.50")
	mustAccount(t, repo, 2, "Other", "1000")

	total, err := repo.TotalBalance(ctx, 1)
	if err != nil {
		t.Fatalf("TotalBalance: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("79.50")) {
		t.Errorf("total balance %s", total)
	}

	seed := func(kind core.MovementKind, categoryID int64, amount string, d time.Time) {
		err := repo.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := repo.InsertMovement(ctx, tx, core.Movement{
				OwnerID:     1,
				CategoryID:  categoryID,
				AccountID:   a.ID,
				Kind:        kind,
				Amount:      decimal.RequireFromString(amount),
				Description: fmt.Sprintf("%s %s", kind, amount),
				Date:        d,
			})
			return err
		})
		if err != nil {
			t.Fatalf("seed movement: %v", err)
		}
	}

	seed(core.Income, 1, "500", day(2024, time.January, 5))
	seed(core.Expense, 5, "120.10", day(2024, time.January, 8))
	seed(core.Expense, 5, "30", day(2024, time.January, 12))
	seed(core.Expense, 6, "50", day(2024, time.January, 15))
	seed(core.Expense, 5, "999", day(2024, time.February, 1)) // outside range

	rng := core.DateRange{Start: day(2024, time.January, 1), End: day(2024, time.January, 31)}

	income, err := repo.PeriodSum(ctx, 1, core.Income, rng)
	if err != nil {
		t.Fatalf("PeriodSum(income): %v", err)
	}
	if !income.Equal(decimal.RequireFromString("500")) {
		t.Errorf("income %s", income)
	}

	expense, err := repo.PeriodSum(ctx, 1, core.Expense, rng)
	if err != nil {
		t.Fatalf("PeriodSum(expense): %v", err)
	}
	if !expense.Equal(decimal.RequireFromString("200.10")) {
		t.Errorf("expense %s", expense)
	}

	totals, err := repo.ExpenseTotalsByCategory(ctx, 1, rng)
	if err != nil {
		t.Fatalf("ExpenseTotalsByCategory: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected 2 category totals, got %d", len(totals))
	}
	if totals[0].Category != "Food & Dining" || !totals[0].Amount.Equal(decimal.RequireFromString("150.10")) {
		t.Errorf("top category %+v", totals[0])
	}
	if totals[1].Category != "Transportation" || !totals[1].Amount.Equal(decimal.RequireFromString("50")) {
		t.Errorf("second category %+v", totals[1])
	}
}
