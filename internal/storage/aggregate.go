package storage

import (
	"context"
	"fmt"

	"saldo/internal/core"

	"github.com/shopspring/decimal"
)

// Read-only aggregation queries for the dashboard. Cents are summed in SQL
// (integer arithmetic, exact) and converted to decimals at the boundary.

// TotalBalance sums the cached balances of all of the owner's accounts.
func (r *SQLiteRepository) TotalBalance(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance_cents), 0) FROM accounts WHERE owner_id = ?`, ownerID).
		Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total balance: %w", err)
	}
	return core.FromCents(cents), nil
}

// PeriodSum sums the amounts of the owner's movements of one kind whose date
// falls inside the inclusive range.
func (r *SQLiteRepository) PeriodSum(ctx context.Context, ownerID int64, kind core.MovementKind, rng core.DateRange) (decimal.Decimal, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM movements
		 WHERE owner_id = ? AND kind = ? AND transaction_date >= ? AND transaction_date <= ?`,
		ownerID, string(kind), rng.Start.Format(dateLayout), rng.End.Format(dateLayout)).
		Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("period sum: %w", err)
	}
	return core.FromCents(cents), nil
}

// ExpenseTotalsByCategory groups the owner's expenses in the range by
// category. The grouping key is the category id; ordering across equal
// totals is not specified.
func (r *SQLiteRepository) ExpenseTotalsByCategory(ctx context.Context, ownerID int64, rng core.DateRange) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.name, c.icon, c.color, SUM(m.amount_cents) AS total_cents
		 FROM movements m
		 JOIN categories c ON c.id = m.category_id
		 WHERE m.owner_id = ? AND m.kind = 'expense' AND m.transaction_date >= ? AND m.transaction_date <= ?
		 GROUP BY m.category_id
		 ORDER BY total_cents DESC`,
		ownerID, rng.Start.Format(dateLayout), rng.End.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var (
			t     core.CategoryTotal
			cents int64
		)
		if err := rows.Scan(&t.Category, &t.Icon, &t.Color, &cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		t.Amount = core.FromCents(cents)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
