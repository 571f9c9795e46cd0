package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/storage"
)

const (
	recentMovementsLimit = 10
	upcomingBillsLimit   = 5
	upcomingBillsHorizon = 30 // days
	trendMonths          = 6

	dashboardCacheSize = 256
	dashboardCacheTTL  = time.Minute
)

// DashboardService derives read-only statistics by aggregating the movement
// log. It never mutates state; assembled views are cached per owner and
// dropped on every mutation.
type DashboardService struct {
	storage *storage.SQLiteRepository
	views   *cache.LRUCache[core.Dashboard]
	now     func() time.Time

	mu   sync.Mutex
	gens map[int64]uint64
}

func NewDashboardService(storage *storage.SQLiteRepository) *DashboardService {
	return &DashboardService{
		storage: storage,
		views:   cache.NewLRUCache[core.Dashboard](dashboardCacheSize, dashboardCacheTTL),
		now:     time.Now,
		gens:    make(map[int64]uint64),
	}
}

// Invalidate drops the owner's cached views. Wired as the ledger service's
// mutation hook.
func (s *DashboardService) Invalidate(ownerID int64) {
	s.mu.Lock()
	s.gens[ownerID]++
	s.mu.Unlock()
}

// Stats returns the headline figures for the range (default: the current
// calendar month).
func (s *DashboardService) Stats(ctx context.Context, ownerID int64, rng core.DateRange) (core.PeriodStats, error) {
	rng, err := s.resolveRange(rng)
	if err != nil {
		return core.PeriodStats{}, err
	}

	var stats core.PeriodStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalBalance, err = s.storage.TotalBalance(gctx, ownerID)
		return err
	})
	g.Go(func() (err error) {
		stats.Income, err = s.storage.PeriodSum(gctx, ownerID, core.Income, rng)
		return err
	})
	g.Go(func() (err error) {
		stats.Expense, err = s.storage.PeriodSum(gctx, ownerID, core.Expense, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.PeriodStats{}, classify(err)
	}
	stats.Net = stats.Income.Sub(stats.Expense)
	return stats, nil
}

// ExpensesByCategory groups the owner's expenses in the range by category.
func (s *DashboardService) ExpensesByCategory(ctx context.Context, ownerID int64, rng core.DateRange) ([]core.CategoryTotal, error) {
	rng, err := s.resolveRange(rng)
	if err != nil {
		return nil, err
	}
	totals, err := s.storage.ExpenseTotalsByCategory(ctx, ownerID, rng)
	if err != nil {
		return nil, classify(err)
	}
	return totals, nil
}

// RecentMovements returns the owner's newest movements, date descending with
// creation time as tie-break. A non-positive limit gets the default of 10.
func (s *DashboardService) RecentMovements(ctx context.Context, ownerID int64, limit int) ([]core.Movement, error) {
	if limit <= 0 {
		limit = recentMovementsLimit
	}
	movements, err := s.storage.RecentMovements(ctx, ownerID, limit)
	if err != nil {
		return nil, classify(err)
	}
	return movements, nil
}

// UpcomingBills returns the owner's unpaid reminders due within the horizon,
// soonest first.
func (s *DashboardService) UpcomingBills(ctx context.Context, ownerID int64, horizonDays, limit int) ([]core.BillReminder, error) {
	if horizonDays <= 0 {
		horizonDays = upcomingBillsHorizon
	}
	if limit <= 0 {
		limit = upcomingBillsLimit
	}
	now := s.now()
	bills, err := s.storage.UpcomingBills(ctx, ownerID, now, now.AddDate(0, 0, horizonDays), limit)
	if err != nil {
		return nil, classify(err)
	}
	return bills, nil
}

// MonthlyTrend returns income, expense and net for each of the last months
// calendar months ending with the current one, oldest first.
func (s *DashboardService) MonthlyTrend(ctx context.Context, ownerID int64, months int) ([]core.MonthlyFlow, error) {
	if months <= 0 {
		months = trendMonths
	}
	now := s.now()
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	trend := make([]core.MonthlyFlow, months)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < months; i++ {
		i := i
		month := anchor.AddDate(0, i-(months-1), 0)
		rng := core.MonthOf(month)
		g.Go(func() error {
			income, err := s.storage.PeriodSum(gctx, ownerID, core.Income, rng)
			if err != nil {
				return err
			}
			expense, err := s.storage.PeriodSum(gctx, ownerID, core.Expense, rng)
			if err != nil {
				return err
			}
			trend[i] = core.MonthlyFlow{
				Month:   month.Format("Jan 2006"),
				Income:  income,
				Expense: expense,
				Net:     income.Sub(expense),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classify(err)
	}
	return trend, nil
}

// Dashboard assembles the full view for the range, fanning the independent
// aggregations out concurrently. Results are cached until the owner's ledger
// changes or the TTL lapses.
func (s *DashboardService) Dashboard(ctx context.Context, ownerID int64, rng core.DateRange) (core.Dashboard, error) {
	rng, err := s.resolveRange(rng)
	if err != nil {
		return core.Dashboard{}, err
	}

	key := s.cacheKey(ownerID, rng)
	if view, ok := s.views.Get(key); ok {
		return view, nil
	}

	view := core.Dashboard{Range: rng}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Stats, err = s.Stats(gctx, ownerID, rng)
		return err
	})
	g.Go(func() (err error) {
		view.Recent, err = s.RecentMovements(gctx, ownerID, recentMovementsLimit)
		return err
	})
	g.Go(func() (err error) {
		view.ByCategory, err = s.ExpensesByCategory(gctx, ownerID, rng)
		return err
	})
	g.Go(func() (err error) {
		view.UpcomingBills, err = s.UpcomingBills(gctx, ownerID, upcomingBillsHorizon, upcomingBillsLimit)
		return err
	})
	g.Go(func() (err error) {
		view.Trend, err = s.MonthlyTrend(gctx, ownerID, trendMonths)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, err
	}

	s.views.Set(key, view)
	return view, nil
}

// resolveRange defaults an empty range to the current calendar month. A
// one-sided range is rejected rather than silently widened.
func (s *DashboardService) resolveRange(rng core.DateRange) (core.DateRange, error) {
	switch {
	case rng.Start.IsZero() && rng.End.IsZero():
		return core.MonthOf(s.now()), nil
	case rng.Start.IsZero():
		return core.DateRange{}, &core.ValidationError{Field: "start_date", Reason: "is required when end_date is set"}
	case rng.End.IsZero():
		return core.DateRange{}, &core.ValidationError{Field: "end_date", Reason: "is required when start_date is set"}
	case rng.End.Before(rng.Start):
		return core.DateRange{}, &core.ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return rng, nil
}

func (s *DashboardService) cacheKey(ownerID int64, rng core.DateRange) string {
	s.mu.Lock()
	gen := s.gens[ownerID]
	s.mu.Unlock()
	return fmt.Sprintf("%d:%d:%s:%s", ownerID, gen,
		rng.Start.Format("2006-01-02"), rng.End.Format("2006-01-02"))
}
