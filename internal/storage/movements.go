package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"saldo/internal/core"
)

// MovementFilter narrows a movement listing. Zero values mean "no filter";
// set filters are combined with AND.
type MovementFilter struct {
	Kind       core.MovementKind
	CategoryID int64
	AccountID  int64
	DateFrom   time.Time
	DateTo     time.Time
}

// movementColumns is the select list shared by every movement query.
const movementColumns = `id, owner_id, category_id, account_id, to_account_id, kind, amount_cents, description, transaction_date, created_at`

// InsertMovement persists a new movement inside the caller's transaction and
// returns it with its identity and creation timestamp filled in.
func (r *SQLiteRepository) InsertMovement(ctx context.Context, tx *sql.Tx, m core.Movement) (core.Movement, error) {
	m.CreatedAt = time.Now().UTC()
	var toAccount sql.NullInt64
	if m.ToAccountID != nil {
		toAccount = sql.NullInt64{Int64: *m.ToAccountID, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO movements (owner_id, category_id, account_id, to_account_id, kind, amount_cents, description, transaction_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OwnerID, m.CategoryID, m.AccountID, toAccount, string(m.Kind),
		core.Cents(m.Amount), m.Description,
		m.Date.Format(dateLayout), m.CreatedAt.Format(createdAtLayout))
	if err != nil {
		return core.Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Movement{}, fmt.Errorf("movement insert id: %w", err)
	}
	m.ID = id
	return m, nil
}

// UpdateMovement replaces the stored fields of an existing movement inside
// the caller's transaction. Identity and creation timestamp are preserved.
func (r *SQLiteRepository) UpdateMovement(ctx context.Context, tx *sql.Tx, m core.Movement) error {
	var toAccount sql.NullInt64
	if m.ToAccountID != nil {
		toAccount = sql.NullInt64{Int64: *m.ToAccountID, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE movements
		 SET category_id = ?, account_id = ?, to_account_id = ?, kind = ?, amount_cents = ?, description = ?, transaction_date = ?
		 WHERE id = ?`,
		m.CategoryID, m.AccountID, toAccount, string(m.Kind),
		core.Cents(m.Amount), m.Description, m.Date.Format(dateLayout), m.ID)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("movement %d: %w", m.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteMovement removes a movement inside the caller's transaction.
func (r *SQLiteRepository) DeleteMovement(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM movements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("movement %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetMovement(ctx context.Context, id int64) (core.Movement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = ?`, id)
	return scanMovement(row)
}

// ListMovements returns one page of an owner's movements matching the
// filter, newest first (date, then creation time), plus the total match
// count.
func (r *SQLiteRepository) ListMovements(ctx context.Context, ownerID int64, filter MovementFilter, limit, offset int) ([]core.Movement, int64, error) {
	where, args := movementWhere(ownerID, filter)

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM movements `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements `+where+
			` ORDER BY transaction_date DESC, created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements, err := collectMovements(rows)
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// RecentMovements returns the owner's newest movements up to limit.
func (r *SQLiteRepository) RecentMovements(ctx context.Context, ownerID int64, limit int) ([]core.Movement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE owner_id = ?
		 ORDER BY transaction_date DESC, created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent movements: %w", err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

func movementWhere(ownerID int64, filter MovementFilter) (string, []any) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}

	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.CategoryID != 0 {
		clauses = append(clauses, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.AccountID != 0 {
		clauses = append(clauses, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if !filter.DateFrom.IsZero() {
		clauses = append(clauses, "transaction_date >= ?")
		args = append(args, filter.DateFrom.Format(dateLayout))
	}
	if !filter.DateTo.IsZero() {
		clauses = append(clauses, "transaction_date <= ?")
		args = append(args, filter.DateTo.Format(dateLayout))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanMovement(row accountScanner) (core.Movement, error) {
	var (
		m           core.Movement
		toAccount   sql.NullInt64
		kind        string
		amountCents int64
		date        string
		createdAt   string
	)
	err := row.Scan(&m.ID, &m.OwnerID, &m.CategoryID, &m.AccountID, &toAccount,
		&kind, &amountCents, &m.Description, &date, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Movement{}, core.ErrNotFound
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("scan movement: %w", err)
	}
	if toAccount.Valid {
		m.ToAccountID = &toAccount.Int64
	}
	m.Kind = core.MovementKind(kind)
	m.Amount = core.FromCents(amountCents)
	m.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return core.Movement{}, fmt.Errorf("parse movement date %q: %w", date, err)
	}
	m.CreatedAt, err = time.Parse(createdAtLayout, createdAt)
	if err != nil {
		return core.Movement{}, fmt.Errorf("parse movement created_at %q: %w", createdAt, err)
	}
	return m, nil
}

func collectMovements(rows *sql.Rows) ([]core.Movement, error) {
	var movements []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
