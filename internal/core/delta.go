package core

import "github.com/shopspring/decimal"

// DeltaMap is the set of signed balance changes a movement applies, keyed by
// account ID. Applying a map is order-independent; the map as a whole must
// be applied atomically.
type DeltaMap map[int64]decimal.Decimal

// Deltas computes the balance effect of one movement. This is the single
// code path for sign logic: create applies it as is, delete applies its
// inverse, update applies the old movement's inverse followed by the new
// draft's map.
//
//	income:   {source: +amount}
//	expense:  {source: -amount}
//	transfer: {source: -amount, destination: +amount}
func Deltas(kind MovementKind, amount decimal.Decimal, accountID int64, toAccountID *int64) DeltaMap {
	d := make(DeltaMap, 2)
	switch kind {
	case Income:
		d[accountID] = amount
	case Expense:
		d[accountID] = amount.Neg()
	case Transfer:
		d[accountID] = amount.Neg()
		if toAccountID != nil {
			d[*toAccountID] = amount
		}
	}
	return d
}

// Deltas returns the movement's balance effect.
func (m Movement) Deltas() DeltaMap {
	return Deltas(m.Kind, m.Amount, m.AccountID, m.ToAccountID)
}

// Deltas returns the effect the draft would have once created.
func (d MovementDraft) Deltas() DeltaMap {
	return Deltas(d.Kind, d.Amount, d.AccountID, d.ToAccountID)
}

// Invert returns a new map with every sign flipped, the exact undo of the
// receiver.
func (d DeltaMap) Invert() DeltaMap {
	inv := make(DeltaMap, len(d))
	for id, amt := range d {
		inv[id] = amt.Neg()
	}
	return inv
}
