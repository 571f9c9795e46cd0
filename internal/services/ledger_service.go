// Package services orchestrates the ledger's mutation and read paths over
// the SQLite store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"saldo/internal/core"
	"saldo/internal/storage"
)

// EventPublisher receives a message after every successful ledger mutation.
// Publishing is best-effort: a publish failure never fails the mutation.
type EventPublisher interface {
	PublishMovementEvent(ctx context.Context, action string, m core.Movement) error
}

// LedgerService is the only code path that changes account balances. Every
// mutation runs as one atomic unit: the movement's delta map and its record
// are committed together or not at all.
//
// Mutations of the same owner are serialized with a per-owner mutex on top
// of the SQL transaction, so concurrent requests can never interleave their
// read-modify-write on the same accounts.
type LedgerService struct {
	storage *storage.SQLiteRepository
	events  EventPublisher

	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	onMutate func(ownerID int64)
}

func NewLedgerService(storage *storage.SQLiteRepository, events EventPublisher) *LedgerService {
	return &LedgerService{
		storage: storage,
		events:  events,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// OnMutate registers a hook called after every committed mutation, used to
// invalidate the owner's cached dashboard.
func (s *LedgerService) OnMutate(fn func(ownerID int64)) {
	s.onMutate = fn
}

// CreateMovement validates the draft, applies its delta map to the touched
// accounts and persists the record, all in one transaction.
func (s *LedgerService) CreateMovement(ctx context.Context, ownerID int64, draft core.MovementDraft) (core.Movement, error) {
	if err := draft.Validate(); err != nil {
		return core.Movement{}, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.checkReferences(ctx, ownerID, draft); err != nil {
		return core.Movement{}, err
	}

	var created core.Movement
	err := s.storage.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.storage.ApplyDeltas(ctx, tx, draft.Deltas()); err != nil {
			return err
		}
		var err error
		created, err = s.storage.InsertMovement(ctx, tx, core.Movement{
			OwnerID:     ownerID,
			CategoryID:  draft.CategoryID,
			AccountID:   draft.AccountID,
			ToAccountID: draft.ToAccountID,
			Kind:        draft.Kind,
			Amount:      draft.Amount,
			Description: draft.Description,
			Date:        draft.Date,
		})
		return err
	})
	if err != nil {
		return core.Movement{}, classify(err)
	}

	s.mutated(ownerID)
	s.publish(ctx, "created", created)
	slog.InfoContext(ctx, "Movement created",
		"movement_id", created.ID,
		"owner_id", ownerID,
		"kind", created.Kind,
		"amount", created.Amount)
	return created, nil
}

// UpdateMovement reverts the old movement's deltas, applies the new draft's
// deltas and rewrites the record, all in one transaction. No observer ever
// sees the reverted-only intermediate state. Identity and creation timestamp
// are preserved.
func (s *LedgerService) UpdateMovement(ctx context.Context, ownerID, movementID int64, draft core.MovementDraft) (core.Movement, error) {
	if err := draft.Validate(); err != nil {
		return core.Movement{}, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	old, err := s.ownedMovement(ctx, ownerID, movementID)
	if err != nil {
		return core.Movement{}, err
	}
	if err := s.checkReferences(ctx, ownerID, draft); err != nil {
		return core.Movement{}, err
	}

	updated := core.Movement{
		ID:          old.ID,
		OwnerID:     old.OwnerID,
		CategoryID:  draft.CategoryID,
		AccountID:   draft.AccountID,
		ToAccountID: draft.ToAccountID,
		Kind:        draft.Kind,
		Amount:      draft.Amount,
		Description: draft.Description,
		Date:        draft.Date,
		CreatedAt:   old.CreatedAt,
	}
	err = s.storage.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.storage.ApplyDeltas(ctx, tx, old.Deltas().Invert()); err != nil {
			return err
		}
		if err := s.storage.ApplyDeltas(ctx, tx, draft.Deltas()); err != nil {
			return err
		}
		return s.storage.UpdateMovement(ctx, tx, updated)
	})
	if err != nil {
		return core.Movement{}, classify(err)
	}

	s.mutated(ownerID)
	s.publish(ctx, "updated", updated)
	slog.InfoContext(ctx, "Movement updated",
		"movement_id", updated.ID,
		"owner_id", ownerID,
		"kind", updated.Kind,
		"amount", updated.Amount)
	return updated, nil
}

// DeleteMovement applies the movement's inverted delta map and removes the
// record, all in one transaction.
func (s *LedgerService) DeleteMovement(ctx context.Context, ownerID, movementID int64) error {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	old, err := s.ownedMovement(ctx, ownerID, movementID)
	if err != nil {
		return err
	}

	err = s.storage.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.storage.ApplyDeltas(ctx, tx, old.Deltas().Invert()); err != nil {
			return err
		}
		return s.storage.DeleteMovement(ctx, tx, movementID)
	})
	if err != nil {
		return classify(err)
	}

	s.mutated(ownerID)
	s.publish(ctx, "deleted", old)
	slog.InfoContext(ctx, "Movement deleted",
		"movement_id", movementID,
		"owner_id", ownerID)
	return nil
}

// GetMovement returns one of the owner's movements.
func (s *LedgerService) GetMovement(ctx context.Context, ownerID, movementID int64) (core.Movement, error) {
	return s.ownedMovement(ctx, ownerID, movementID)
}

// CreateAccount opens a new account for the owner, optionally with an
// opening balance.
func (s *LedgerService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.Name == "" {
		return core.Account{}, &core.ValidationError{Field: "name", Reason: "is required"}
	}
	if !a.Kind.Valid() {
		return core.Account{}, &core.ValidationError{Field: "kind", Reason: "is not a known account kind"}
	}
	if a.Balance.Exponent() < -2 {
		return core.Account{}, &core.ValidationError{Field: "balance", Reason: "has more than two decimal places"}
	}

	created, err := s.storage.CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, classify(err)
	}
	s.mutated(a.OwnerID)
	slog.InfoContext(ctx, "Account created",
		"account_id", created.ID,
		"owner_id", created.OwnerID,
		"kind", created.Kind)
	return created, nil
}

// ListAccounts returns the owner's accounts sorted by name.
func (s *LedgerService) ListAccounts(ctx context.Context, ownerID int64) ([]core.Account, error) {
	return s.storage.ListAccounts(ctx, ownerID)
}

// GetAccount returns one of the owner's accounts.
func (s *LedgerService) GetAccount(ctx context.Context, ownerID, accountID int64) (core.Account, error) {
	a, err := s.storage.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, classify(err)
	}
	if a.OwnerID != ownerID {
		return core.Account{}, core.ErrForbidden
	}
	return a, nil
}

// DeleteAccount removes one of the owner's accounts. Movements referencing
// it are cascade-deleted by the store.
func (s *LedgerService) DeleteAccount(ctx context.Context, ownerID, accountID int64) error {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.GetAccount(ctx, ownerID, accountID); err != nil {
		return err
	}
	if err := s.storage.DeleteAccount(ctx, accountID); err != nil {
		return classify(err)
	}
	s.mutated(ownerID)
	return nil
}

// ListCategories returns the shared category reference data.
func (s *LedgerService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.storage.ListCategories(ctx)
}

// CreateBillReminder records a new reminder for the owner.
func (s *LedgerService) CreateBillReminder(ctx context.Context, b core.BillReminder) (core.BillReminder, error) {
	if err := b.Validate(); err != nil {
		return core.BillReminder{}, err
	}
	if _, err := s.storage.GetCategory(ctx, b.CategoryID); err != nil {
		return core.BillReminder{}, fmt.Errorf("category %d: %w", b.CategoryID, classify(err))
	}
	created, err := s.storage.CreateBillReminder(ctx, b)
	if err != nil {
		return core.BillReminder{}, classify(err)
	}
	return created, nil
}

// ListBillReminders returns the owner's reminders sorted by due date.
func (s *LedgerService) ListBillReminders(ctx context.Context, ownerID int64) ([]core.BillReminder, error) {
	return s.storage.ListBillReminders(ctx, ownerID)
}

// MarkBillPaid flips the paid flag on one of the owner's reminders.
func (s *LedgerService) MarkBillPaid(ctx context.Context, ownerID, billID int64, paid bool) error {
	b, err := s.storage.GetBillReminder(ctx, billID)
	if err != nil {
		return classify(err)
	}
	if b.OwnerID != ownerID {
		return core.ErrForbidden
	}
	if err := s.storage.SetBillPaid(ctx, billID, paid); err != nil {
		return classify(err)
	}
	s.mutated(ownerID)
	return nil
}

func (s *LedgerService) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}

// ownedMovement fetches a movement and enforces the ownership check before
// anything else is read from it.
func (s *LedgerService) ownedMovement(ctx context.Context, ownerID, movementID int64) (core.Movement, error) {
	m, err := s.storage.GetMovement(ctx, movementID)
	if err != nil {
		return core.Movement{}, classify(err)
	}
	if m.OwnerID != ownerID {
		return core.Movement{}, core.ErrForbidden
	}
	return m, nil
}

// checkReferences enforces the draft's referential preconditions: the
// category must exist, and every referenced account must exist and belong to
// the requesting owner. Runs before the transaction so a failure never
// touches a balance.
func (s *LedgerService) checkReferences(ctx context.Context, ownerID int64, draft core.MovementDraft) error {
	if _, err := s.storage.GetCategory(ctx, draft.CategoryID); err != nil {
		return fmt.Errorf("category %d: %w", draft.CategoryID, classify(err))
	}
	if err := s.checkOwnedAccount(ctx, ownerID, draft.AccountID); err != nil {
		return err
	}
	if draft.ToAccountID != nil {
		return s.checkOwnedAccount(ctx, ownerID, *draft.ToAccountID)
	}
	return nil
}

func (s *LedgerService) checkOwnedAccount(ctx context.Context, ownerID, accountID int64) error {
	a, err := s.storage.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account %d: %w", accountID, classify(err))
	}
	if a.OwnerID != ownerID {
		return core.ErrForbidden
	}
	return nil
}

func (s *LedgerService) ownerLock(ownerID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ownerID] = lock
	}
	return lock
}

func (s *LedgerService) mutated(ownerID int64) {
	if s.onMutate != nil {
		s.onMutate(ownerID)
	}
}

func (s *LedgerService) publish(ctx context.Context, action string, m core.Movement) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMovementEvent(ctx, action, m); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"action", action,
			"movement_id", m.ID,
			"error", err)
	}
}

// classify folds unexpected store failures into the conflict family so
// callers can tell retryable infrastructure errors apart from terminal ones.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrForbidden) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrConflict, err)
}
