package services

import (
	"context"

	"saldo/internal/core"
	"saldo/internal/storage"
)

// PageSize is the fixed page size for movement listings.
const PageSize = 20

// MovementPage is one page of a filtered listing plus the total match count.
type MovementPage struct {
	Movements []core.Movement
	Page      int
	PageSize  int
	Total     int64
}

// MovementQueryService filters and paginates the movement log for list
// views. Read-only.
type MovementQueryService struct {
	storage *storage.SQLiteRepository
}

func NewMovementQueryService(storage *storage.SQLiteRepository) *MovementQueryService {
	return &MovementQueryService{storage: storage}
}

// ListMovements returns the requested page of the owner's movements matching
// the filter, newest first. Pages are 1-based; anything below 1 means the
// first page.
func (s *MovementQueryService) ListMovements(ctx context.Context, ownerID int64, filter storage.MovementFilter, page int) (MovementPage, error) {
	if page < 1 {
		page = 1
	}
	movements, total, err := s.storage.ListMovements(ctx, ownerID, filter, PageSize, (page-1)*PageSize)
	if err != nil {
		return MovementPage{}, classify(err)
	}
	return MovementPage{
		Movements: movements,
		Page:      page,
		PageSize:  PageSize,
		Total:     total,
	}, nil
}
