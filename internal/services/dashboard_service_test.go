package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saldo/internal/core"
)

func newTestDashboard(t *testing.T, ledger *LedgerService, now time.Time) *DashboardService {
	t.Helper()
	svc := NewDashboardService(ledger.storage)
	svc.now = func() time.Time { return now }
	ledger.OnMutate(svc.Invalidate)
	return svc
}

func seedMovement(t *testing.T, svc *LedgerService, ownerID int64, kind core.MovementKind, categoryID int64, accountID int64, amount string, day time.Time, desc string) core.Movement {
	t.Helper()
	m, err := svc.CreateMovement(context.Background(), ownerID, core.MovementDraft{
		CategoryID:  categoryID,
		AccountID:   accountID,
		Kind:        kind,
		Amount:      dec(amount),
		Description: desc,
		Date:        day,
	})
	require.NoError(t, err)
	return m
}

func TestStats_CurrentMonth(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.January, 20))
	ctx := context.Background()

	a := newAccount(t, ledger, 1, "A", "1000")
	b := newAccount(t, ledger, 1, "B", "500")

	seedMovement(t, ledger, 1, core.Income, catSalary, a.ID, "500", date(2024, time.January, 5), "Salary")
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "200", date(2024, time.January, 10), "Groceries")
	// Outside the month: must not count toward income/expense.
	seedMovement(t, ledger, 1, core.Expense, catFood, b.ID, "999", date(2023, time.December, 28), "Last year")
	// Transfers move money around but are neither income nor expense.
	_, err := ledger.CreateMovement(ctx, 1, core.MovementDraft{
		CategoryID:  catTransfer,
		AccountID:   a.ID,
		ToAccountID: &b.ID,
		Kind:        core.Transfer,
		Amount:      dec("100"),
		Description: "To B",
		Date:        date(2024, time.January, 12),
	})
	require.NoError(t, err)

	stats, err := dash.Stats(ctx, 1, core.DateRange{})
	require.NoError(t, err)

	assert.True(t, stats.Income.Equal(dec("500")), "income %s", stats.Income)
	assert.True(t, stats.Expense.Equal(dec("200")), "expense %s", stats.Expense)
	assert.True(t, stats.Net.Equal(dec("300")), "net %s", stats.Net)
	// 1000 + 500 - 200 - 999 across both accounts.
	assert.True(t, stats.TotalBalance.Equal(dec("801")), "total %s", stats.TotalBalance)
}

func TestExpensesByCategory(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.January, 20))
	ctx := context.Background()

	a := newAccount(t, ledger, 1, "A", "1000")
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "30", date(2024, time.January, 2), "Lunch")
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "20", date(2024, time.January, 9), "Dinner")
	seedMovement(t, ledger, 1, core.Expense, 6, a.ID, "15", date(2024, time.January, 9), "Bus pass")
	seedMovement(t, ledger, 1, core.Income, catSalary, a.ID, "500", date(2024, time.January, 5), "Salary")

	totals, err := dash.ExpensesByCategory(ctx, 1, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, totals, 2)

	// Largest first.
	assert.Equal(t, "Food & Dining", totals[0].Category)
	assert.True(t, totals[0].Amount.Equal(dec("50")))
	assert.Equal(t, "Transportation", totals[1].Category)
	assert.True(t, totals[1].Amount.Equal(dec("15")))
}

func TestRecentMovements_Ordering(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.January, 20))
	ctx := context.Background()

	a := newAccount(t, ledger, 1, "A", "1000")
	older := seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "10", date(2024, time.January, 3), "First")
	sameDay1 := seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "11", date(2024, time.January, 10), "Second")
	sameDay2 := seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "12", date(2024, time.January, 10), "Third")

	recent, err := dash.RecentMovements(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Date descending, creation time breaking the tie.
	assert.Equal(t, sameDay2.ID, recent[0].ID)
	assert.Equal(t, sameDay1.ID, recent[1].ID)

	recent, err = dash.RecentMovements(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, older.ID, recent[2].ID)
}

func TestMonthlyTrend(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.March, 15))
	ctx := context.Background()

	a := newAccount(t, ledger, 1, "A", "0")
	seedMovement(t, ledger, 1, core.Income, catSalary, a.ID, "1000", date(2024, time.January, 31), "Jan salary")
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "400", date(2024, time.February, 14), "Feb dinner")
	seedMovement(t, ledger, 1, core.Income, catSalary, a.ID, "1000", date(2024, time.March, 1), "Mar salary")
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "250", date(2024, time.March, 2), "Mar groceries")

	trend, err := dash.MonthlyTrend(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, trend, 3)

	assert.Equal(t, "Jan 2024", trend[0].Month)
	assert.True(t, trend[0].Income.Equal(dec("1000")))
	assert.True(t, trend[0].Expense.Equal(dec("0")))

	assert.Equal(t, "Feb 2024", trend[1].Month)
	assert.True(t, trend[1].Net.Equal(dec("-400")))

	assert.Equal(t, "Mar 2024", trend[2].Month)
	assert.True(t, trend[2].Net.Equal(dec("750")))
}

func TestUpcomingBills_HorizonAndOrder(t *testing.T) {
	ledger, _ := newTestLedger(t)
	now := date(2024, time.January, 20)
	dash := newTestDashboard(t, ledger, now)
	ctx := context.Background()

	mkBill := func(name string, due time.Time, paid bool) core.BillReminder {
		b, err := ledger.CreateBillReminder(ctx, core.BillReminder{
			OwnerID:    1,
			CategoryID: 9,
			Name:       name,
			Amount:     dec("45"),
			DueDate:    due,
			Frequency:  core.Monthly,
		})
		require.NoError(t, err)
		if paid {
			require.NoError(t, ledger.MarkBillPaid(ctx, 1, b.ID, true))
		}
		return b
	}

	mkBill("Rent", date(2024, time.February, 1), false)
	mkBill("Internet", date(2024, time.January, 25), false)
	mkBill("Paid already", date(2024, time.January, 22), true)
	mkBill("Too far out", date(2024, time.April, 1), false)

	bills, err := dash.UpcomingBills(ctx, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "Internet", bills[0].Name)
	assert.Equal(t, "Rent", bills[1].Name)
}

func TestDashboard_CacheInvalidatedOnMutation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.January, 20))
	ctx := context.Background()

	a := newAccount(t, ledger, 1, "A", "1000")
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "100", date(2024, time.January, 5), "Before")

	view, err := dash.Dashboard(ctx, 1, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, view.Recent, 1)
	assert.True(t, view.Stats.Expense.Equal(dec("100")))

	// The mutation hook must drop the cached view so the next read sees the
	// new movement.
	seedMovement(t, ledger, 1, core.Expense, catFood, a.ID, "50", date(2024, time.January, 6), "After")

	view, err = dash.Dashboard(ctx, 1, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, view.Recent, 2)
	assert.True(t, view.Stats.Expense.Equal(dec("150")))
}

func TestDashboard_OneSidedRangeRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.March, 15))
	ctx := context.Background()

	_, err := dash.Dashboard(ctx, 1, core.DateRange{Start: date(2024, time.January, 1)})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = dash.Stats(ctx, 1, core.DateRange{End: date(2024, time.January, 31)})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = dash.ExpensesByCategory(ctx, 1, core.DateRange{
		Start: date(2024, time.February, 1),
		End:   date(2024, time.January, 1),
	})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDashboard_ExplicitRange(t *testing.T) {
	ledger, _ := newTestLedger(t)
	dash := newTestDashboard(t, ledger, date(2024, time.March, 15))
	ctx := context.Background()

	a := newAccount(t, ledger, 1, "A", "0")
	seedMovement(t, ledger, 1, core.Income, catSalary, a.ID, "1000", date(2024, time.January, 10), "Jan salary")
	seedMovement(t, ledger, 1, core.Income, catSalary, a.ID, "1000", date(2024, time.March, 10), "Mar salary")

	rng := core.DateRange{Start: date(2024, time.January, 1), End: date(2024, time.January, 31)}
	view, err := dash.Dashboard(ctx, 1, rng)
	require.NoError(t, err)
	assert.Equal(t, rng, view.Range)
	assert.True(t, view.Stats.Income.Equal(dec("1000")))
}
