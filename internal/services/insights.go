package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"budgetnest/internal/core"
	"budgetnest/internal/insights"
	"budgetnest/internal/log"
	"budgetnest/internal/period"
	"budgetnest/internal/store"
)

// Report is the aggregated view of one period selection.
type Report struct {
	Period     period.Kind              `json:"period"`
	Offset     int                      `json:"offset"`
	Range      core.DateRange           `json:"range"`
	Label      string                   `json:"label"`
	Series     []insights.Bucket        `json:"series"`
	Categories []insights.CategoryTotal `json:"categories"`
	Income     core.Money               `json:"total_income"`
	Expenses   core.Money               `json:"total_expenses"`
}

// InsightsService aggregates an owner's records over a period. Nothing is
// cached: every call reads both stores.
type InsightsService struct {
	income   store.IncomeStore
	expenses store.ExpenseStore
	resolver *period.Resolver
	logger   *log.Logger
}

func NewInsightsService(income store.IncomeStore, expenses store.ExpenseStore, resolver *period.Resolver, logger *log.Logger) *InsightsService {
	if resolver == nil {
		resolver = period.NewResolver(nil)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &InsightsService{
		income:   income,
		expenses: expenses,
		resolver: resolver,
		logger:   logger.WithComponent(log.ComponentInsights),
	}
}

// Build fetches both record kinds concurrently for the selected range. When
// either fetch fails the other is cancelled. Results that arrive after ctx
// is done are discarded.
func (s *InsightsService) Build(ctx context.Context, owner string, kind period.Kind, offset int) (Report, error) {
	rng := s.resolver.Range(kind, offset)
	report := Report{
		Period: kind,
		Offset: offset,
		Range:  rng,
		Label:  s.resolver.Label(kind, offset),
	}

	var (
		incomes  []core.Income
		expenses []core.Expense
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.income.SelectByOwnerAndRange(gctx, owner, rng)
		if err != nil {
			return fmt.Errorf("list income: %w", err)
		}
		incomes = recs
		return nil
	})
	g.Go(func() error {
		recs, err := s.expenses.SelectByOwnerAndRange(gctx, owner, rng)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		expenses = recs
		return nil
	})

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Report{}, ctxErr
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Insights fetch failed",
			log.NewFields().WithUser(owner).WithPeriod(string(kind), offset).WithError(err).ToSlice()...)
		return Report{}, err
	}

	report.Series = insights.BuildTimeSeries(incomes, expenses, kind)
	report.Categories = insights.BuildCategoryBreakdown(expenses)
	for _, in := range incomes {
		report.Income = report.Income.Add(in.Amount)
	}
	report.Expenses = insights.Total(report.Categories)

	s.logger.DebugContext(ctx, "Insights built",
		log.NewFields().WithUser(owner).WithPeriod(string(kind), offset).ToSlice()...)
	return report, nil
}
