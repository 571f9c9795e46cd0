package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"saldo/internal/core"

	_ "modernc.org/sqlite"
)

// dateLayout is how calendar dates (transaction_date, due_date) are stored.
const dateLayout = "2006-01-02"

// createdAtLayout keeps sub-second precision so created_at works as an
// ordering tie-break. The fractional seconds are fixed-width, never trimmed:
// ORDER BY created_at compares the stored strings byte-wise, and trimmed
// fractions ("…05.1Z" vs "…05.12Z") would not collate chronologically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn inside a single SQL transaction. Any error from fn rolls
// everything back, which is what gives ledger mutations their all-or-nothing
// semantics.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (owner_id, name, kind, balance_cents, icon) VALUES (?, ?, ?, ?, ?)`,
		a.OwnerID, a.Name, string(a.Kind), core.Cents(a.Balance), a.Icon)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, fmt.Errorf("account insert id: %w", err)
	}
	a.ID = id
	return a, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, kind, balance_cents, icon FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, ownerID int64) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, kind, balance_cents, icon FROM accounts
		 WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account; movements referencing it go with it
// (ON DELETE CASCADE, the store-level policy for account deletion).
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ApplyDeltas adds every entry of the delta map to the corresponding
// account's cached balance, inside the caller's transaction. The balance
// change is a single relative UPDATE per account, never a read-modify-write
// in Go code.
func (r *SQLiteRepository) ApplyDeltas(ctx context.Context, tx *sql.Tx, deltas core.DeltaMap) error {
	for accountID, amount := range deltas {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`,
			core.Cents(amount), accountID)
		if err != nil {
			return fmt.Errorf("apply delta to account %d: %w", accountID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
		}
	}
	return nil
}

type accountScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row accountScanner) (core.Account, error) {
	var (
		a            core.Account
		kind         string
		balanceCents int64
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &kind, &balanceCents, &a.Icon)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Kind = core.AccountKind(kind)
	a.Balance = core.FromCents(balanceCents)
	return a, nil
}

// --- categories ---

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var (
		c    core.Category
		kind string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, icon, color, kind FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Kind = core.CategoryKind(kind)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, icon, color, kind FROM categories ORDER BY kind, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var (
			c    core.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(kind)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// --- bill reminders ---

func (r *SQLiteRepository) CreateBillReminder(ctx context.Context, b core.BillReminder) (core.BillReminder, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO bill_reminders (owner_id, category_id, name, amount_cents, due_date, frequency, is_paid)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.OwnerID, b.CategoryID, b.Name, core.Cents(b.Amount),
		b.DueDate.Format(dateLayout), string(b.Frequency), boolToInt(b.IsPaid))
	if err != nil {
		return core.BillReminder{}, fmt.Errorf("insert bill reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.BillReminder{}, fmt.Errorf("bill reminder insert id: %w", err)
	}
	b.ID = id
	return b, nil
}

func (r *SQLiteRepository) GetBillReminder(ctx context.Context, id int64) (core.BillReminder, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, category_id, name, amount_cents, due_date, frequency, is_paid
		 FROM bill_reminders WHERE id = ?`, id)
	return scanBill(row)
}

func (r *SQLiteRepository) ListBillReminders(ctx context.Context, ownerID int64) ([]core.BillReminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, category_id, name, amount_cents, due_date, frequency, is_paid
		 FROM bill_reminders WHERE owner_id = ? ORDER BY due_date`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bill reminders: %w", err)
	}
	defer rows.Close()
	return collectBills(rows)
}

// UpcomingBills returns unpaid reminders due inside [from, to], soonest
// first.
func (r *SQLiteRepository) UpcomingBills(ctx context.Context, ownerID int64, from, to time.Time, limit int) ([]core.BillReminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, category_id, name, amount_cents, due_date, frequency, is_paid
		 FROM bill_reminders
		 WHERE owner_id = ? AND is_paid = 0 AND due_date >= ? AND due_date <= ?
		 ORDER BY due_date LIMIT ?`,
		ownerID, from.Format(dateLayout), to.Format(dateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming bills: %w", err)
	}
	defer rows.Close()
	return collectBills(rows)
}

// DueUnpaidBills returns unpaid reminders across all owners whose due date
// has arrived, for the reminder worker.
func (r *SQLiteRepository) DueUnpaidBills(ctx context.Context, asOf time.Time, limit int) ([]core.BillReminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, category_id, name, amount_cents, due_date, frequency, is_paid
		 FROM bill_reminders
		 WHERE is_paid = 0 AND due_date <= ?
		 ORDER BY due_date LIMIT ?`,
		asOf.Format(dateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("due unpaid bills: %w", err)
	}
	defer rows.Close()
	return collectBills(rows)
}

// PaidRecurringBillsDueBefore returns paid recurring reminders whose cycle
// has lapsed and should be re-armed for the next occurrence.
func (r *SQLiteRepository) PaidRecurringBillsDueBefore(ctx context.Context, asOf time.Time, limit int) ([]core.BillReminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, category_id, name, amount_cents, due_date, frequency, is_paid
		 FROM bill_reminders
		 WHERE is_paid = 1 AND frequency != 'once' AND due_date <= ?
		 ORDER BY due_date LIMIT ?`,
		asOf.Format(dateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("paid recurring bills: %w", err)
	}
	defer rows.Close()
	return collectBills(rows)
}

func (r *SQLiteRepository) SetBillPaid(ctx context.Context, id int64, paid bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bill_reminders SET is_paid = ? WHERE id = ?`, boolToInt(paid), id)
	if err != nil {
		return fmt.Errorf("set bill paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bill reminder %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// RescheduleBill moves a reminder to its next due date and marks it unpaid.
func (r *SQLiteRepository) RescheduleBill(ctx context.Context, id int64, newDue time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bill_reminders SET due_date = ?, is_paid = 0 WHERE id = ?`,
		newDue.Format(dateLayout), id)
	if err != nil {
		return fmt.Errorf("reschedule bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bill reminder %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func scanBill(row accountScanner) (core.BillReminder, error) {
	var (
		b           core.BillReminder
		amountCents int64
		due         string
		frequency   string
		paid        int
	)
	err := row.Scan(&b.ID, &b.OwnerID, &b.CategoryID, &b.Name, &amountCents, &due, &frequency, &paid)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BillReminder{}, core.ErrNotFound
	}
	if err != nil {
		return core.BillReminder{}, fmt.Errorf("scan bill reminder: %w", err)
	}
	b.Amount = core.FromCents(amountCents)
	b.Frequency = core.Frequency(frequency)
	b.IsPaid = paid != 0
	b.DueDate, err = time.Parse(dateLayout, due)
	if err != nil {
		return core.BillReminder{}, fmt.Errorf("parse due date %q: %w", due, err)
	}
	return b, nil
}

func collectBills(rows *sql.Rows) ([]core.BillReminder, error) {
	var bills []core.BillReminder
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
