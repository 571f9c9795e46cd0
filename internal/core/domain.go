package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   MovementKind = "income"
	Expense  MovementKind = "expense"
	Transfer MovementKind = "transfer"
)

const (
	Cash       AccountKind = "cash"
	DebitCard  AccountKind = "debit_card"
	CreditCard AccountKind = "credit_card"
	Savings    AccountKind = "savings"
	Checking   AccountKind = "checking"
)

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
	CategoryBoth    CategoryKind = "both"
)

const (
	Once    Frequency = "once"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type (
	MovementKind string
	AccountKind  string
	CategoryKind string
	Frequency    string

	// Account is an owned money account with a cached balance.
	// Invariant: Balance equals the sum of the deltas of every movement
	// currently applied that references the account as source or destination.
	Account struct {
		ID      int64
		OwnerID int64
		Name    string
		Kind    AccountKind
		Balance decimal.Decimal
		Icon    string
	}

	// Category is read-only reference data from the ledger's point of view.
	Category struct {
		ID    int64
		Name  string
		Icon  string
		Color string
		Kind  CategoryKind
	}

	// Movement is a single recorded income, expense or transfer event.
	Movement struct {
		ID          int64
		OwnerID     int64
		CategoryID  int64
		AccountID   int64
		ToAccountID *int64 // set iff Kind == Transfer
		Kind        MovementKind
		Amount      decimal.Decimal
		Description string
		Date        time.Time
		CreatedAt   time.Time
	}

	// MovementDraft carries the caller-supplied fields of a movement to
	// create, or to replace an existing one with.
	MovementDraft struct {
		CategoryID  int64
		AccountID   int64
		ToAccountID *int64
		Kind        MovementKind
		Amount      decimal.Decimal
		Description string
		Date        time.Time
	}

	BillReminder struct {
		ID         int64
		OwnerID    int64
		CategoryID int64
		Name       string
		Amount     decimal.Decimal
		DueDate    time.Time
		Frequency  Frequency
		IsPaid     bool
	}
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	switch k {
	case Cash, DebitCard, CreditCard, Savings, Checking:
		return true
	}
	return false
}

// Valid reports whether f is a known reminder frequency.
func (f Frequency) Valid() bool {
	switch f {
	case Once, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Validate checks the draft's own fields. Referential checks (category and
// account existence, ownership) need the store and live in the ledger service.
func (d MovementDraft) Validate() error {
	if !d.Kind.Valid() {
		return invalid("type", "must be income, expense or transfer")
	}
	if err := ValidateAmount(d.Amount); err != nil {
		return err
	}
	if len(strings.TrimSpace(d.Description)) == 0 {
		return invalid("description", "is required")
	}
	if len(d.Description) > 255 {
		return invalid("description", "too long (max 255 characters)")
	}
	if d.Date.IsZero() {
		return invalid("transaction_date", "is required")
	}
	if d.Kind == Transfer {
		if d.ToAccountID == nil {
			return invalid("to_account_id", "is required for transfers")
		}
		if *d.ToAccountID == d.AccountID {
			return invalid("to_account_id", "must differ from the source account")
		}
	} else if d.ToAccountID != nil {
		return invalid("to_account_id", "only allowed for transfers")
	}
	return nil
}

// Draft returns the movement's fields as a draft, useful when a caller only
// wants to change some fields of an existing movement.
func (m Movement) Draft() MovementDraft {
	return MovementDraft{
		CategoryID:  m.CategoryID,
		AccountID:   m.AccountID,
		ToAccountID: m.ToAccountID,
		Kind:        m.Kind,
		Amount:      m.Amount,
		Description: m.Description,
		Date:        m.Date,
	}
}

// NextDueDate returns the reminder's first occurrence strictly after the
// given time, stepping by its frequency. One-off reminders have no next
// occurrence and return their due date unchanged.
func (b BillReminder) NextDueDate(after time.Time) time.Time {
	due := b.DueDate
	for !due.After(after) {
		switch b.Frequency {
		case Weekly:
			due = due.AddDate(0, 0, 7)
		case Monthly:
			due = due.AddDate(0, 1, 0)
		case Yearly:
			due = due.AddDate(1, 0, 0)
		default:
			return due
		}
	}
	return due
}

// Validate checks a bill reminder's own fields.
func (b BillReminder) Validate() error {
	if len(strings.TrimSpace(b.Name)) == 0 {
		return invalid("name", "is required")
	}
	if len(b.Name) > 255 {
		return invalid("name", "too long (max 255 characters)")
	}
	if err := ValidateAmount(b.Amount); err != nil {
		return err
	}
	if b.DueDate.IsZero() {
		return invalid("due_date", "is required")
	}
	if !b.Frequency.Valid() {
		return invalid("frequency", "must be once, weekly, monthly or yearly")
	}
	return nil
}
