package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive calendar-date interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) DateRange {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return DateRange{Start: start, End: start.AddDate(0, 1, -1)}
}

// PeriodStats is the headline dashboard figures for one owner and range.
type PeriodStats struct {
	TotalBalance decimal.Decimal
	Income       decimal.Decimal
	Expense      decimal.Decimal
	Net          decimal.Decimal
}

// CategoryTotal is an expense sum grouped by category.
type CategoryTotal struct {
	Category string
	Icon     string
	Color    string
	Amount   decimal.Decimal
}

// MonthlyFlow is one month of the income/expense trend.
type MonthlyFlow struct {
	Month   string // "Jan 2024"
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// Dashboard is the assembled read-only view over one owner's ledger.
type Dashboard struct {
	Range         DateRange
	Stats         PeriodStats
	Recent        []Movement
	ByCategory    []CategoryTotal
	UpcomingBills []BillReminder
	Trend         []MonthlyFlow
}
