package http

import (
	"context"
	"net/http"

	"budgetnest/internal/auth"
	"budgetnest/internal/core"
	"budgetnest/internal/period"
	"budgetnest/internal/services"
)

const staleNotice = "Showing the last loaded entries. The latest changes could not be fetched."

// pageData is shared by every full page.
type pageData struct {
	Title    string
	User     auth.Identity
	SignedIn bool
	Active   string
}

func newPage(r *http.Request, title, active string) pageData {
	id, ok := identity(r)
	return pageData{Title: title, User: id, SignedIn: ok, Active: active}
}

type overviewView struct {
	Month    string
	Overview core.MonthOverview
	Stale    bool
}

type incomeManager struct {
	Month  string
	View   services.View[core.Income]
	Form   incomeForm
	Errors fieldErrors
	Notice string
}

type expenseManager struct {
	Month  string
	View   services.View[core.Expense]
	Form   expenseForm
	Errors fieldErrors
	Notice string
}

type dashboardPage struct {
	pageData
	Month      string
	MonthLabel string
	PrevMonth  string
	NextMonth  string
	Overview   overviewView
	Income     incomeManager
	Expenses   expenseManager
}

func (s *Server) requestMonth(r *http.Request) string {
	return ParseMonthParam(r.URL.Query(), s.resolver.CurrentMonth())
}

func (s *Server) today() string {
	return core.DateOf(s.resolver.Now()).String()
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, http.StatusOK, s.requestMonth(r), nil, nil)
}

// renderDashboard renders the full page for month. A non-nil manager replaces
// the freshly loaded one, which is how a rejected form keeps its values.
func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, month string, inc *incomeManager, exp *expenseManager) {
	id, _ := identity(r)
	ctx := r.Context()

	if inc == nil {
		m, err := s.loadIncome(ctx, id.UserID, month)
		if err != nil {
			s.fetchFailed(w, r, err)
			return
		}
		inc = &m
	}
	if exp == nil {
		m, err := s.loadExpenses(ctx, id.UserID, month)
		if err != nil {
			s.fetchFailed(w, r, err)
			return
		}
		exp = &m
	}

	prev, _ := period.ShiftMonth(month, -1)
	next, _ := period.ShiftMonth(month, 1)

	page := dashboardPage{
		pageData:   newPage(r, "Dashboard", "dashboard"),
		Month:      month,
		MonthLabel: period.MonthLabel(month),
		PrevMonth:  prev,
		NextMonth:  next,
		Overview: overviewView{
			Month:    month,
			Overview: core.Overview(month, inc.View.Records, exp.View.Records),
			Stale:    inc.View.Stale || exp.View.Stale,
		},
		Income:   *inc,
		Expenses: *exp,
	}
	s.render(w, r, status, "dashboard.html", page)
}

// handleOverview serves the month totals panel on its own so it can refresh
// after a create or delete.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	month := s.requestMonth(r)

	inc, err := s.income.Fetch(r.Context(), id.UserID, month)
	if err != nil {
		s.fetchFailed(w, r, err)
		return
	}
	exp, err := s.expenses.Fetch(r.Context(), id.UserID, month)
	if err != nil {
		s.fetchFailed(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "overview", overviewView{
		Month:    month,
		Overview: core.Overview(month, inc.Records, exp.Records),
		Stale:    inc.Stale || exp.Stale,
	})
}

func (s *Server) loadIncome(ctx context.Context, owner, month string) (incomeManager, error) {
	view, err := s.income.Fetch(ctx, owner, month)
	if err != nil {
		return incomeManager{}, err
	}
	s.noteStale(view.Stale)
	return incomeManager{
		Month:  month,
		View:   view,
		Form:   incomeForm{Date: s.today()},
		Errors: fieldErrors{},
	}, nil
}

func (s *Server) loadExpenses(ctx context.Context, owner, month string) (expenseManager, error) {
	view, err := s.expenses.Fetch(ctx, owner, month)
	if err != nil {
		return expenseManager{}, err
	}
	s.noteStale(view.Stale)
	return expenseManager{
		Month:  month,
		View:   view,
		Form:   expenseForm{Date: s.today()},
		Errors: fieldErrors{},
	}, nil
}
