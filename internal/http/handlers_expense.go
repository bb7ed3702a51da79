package http

import (
	"errors"
	"net/http"

	"budgetnest/internal/amqp"
	"budgetnest/internal/log"
	"budgetnest/internal/services"
)

const expenseManagerTemplate = "expense-manager"

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	m, err := s.loadExpenses(r.Context(), id.UserID, s.requestMonth(r))
	if err != nil {
		s.fetchFailed(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, expenseManagerTemplate, m)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}

	id, _ := identity(r)
	ctx := r.Context()
	month := ParseMonthParam(r.PostForm, s.resolver.CurrentMonth())
	form := readExpenseForm(r.PostForm)

	rec, errs := form.Expense(id.UserID)
	if errs.Any() {
		s.rejectExpense(w, r, http.StatusUnprocessableEntity, month, form, errs, "")
		return
	}

	saved, view, err := s.expenses.Create(ctx, id.UserID, rec, month)
	if err != nil {
		if errs.addErr(err) {
			s.rejectExpense(w, r, http.StatusUnprocessableEntity, month, form, errs, "")
			return
		}
		if errors.Is(err, services.ErrOwnerMismatch) {
			s.rejectExpense(w, r, http.StatusForbidden, month, form, errs, "This entry does not belong to your account.")
			return
		}
		s.logger.ErrorContext(ctx, "Failed to save expense",
			log.NewFields().WithUser(id.UserID).WithError(err).WithOperation(log.OpCreate).ToSlice()...)
		s.rejectExpense(w, r, http.StatusInternalServerError, month, form, errs, "Could not save the expense. Please try again.")
		return
	}

	s.countCreated(amqp.KindExpenses)
	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().WithRecord(amqp.KindExpenses, saved.ID, id.UserID, saved.Amount.Cents).ToSlice()...)

	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard?month="+month, http.StatusSeeOther)
		return
	}

	s.noteStale(view.Stale)
	s.renderWith(w, r, afterWrite(amqp.KindExpenses, month, "Expense added", true), expenseManagerTemplate, expenseManager{
		Month:  month,
		View:   view,
		Form:   expenseForm{Date: form.Date},
		Errors: fieldErrors{},
	})
}

// rejectExpense shows the form again with the submitted values.
func (s *Server) rejectExpense(w http.ResponseWriter, r *http.Request, status int, month string, form expenseForm, errs fieldErrors, notice string) {
	id, _ := identity(r)
	m, err := s.loadExpenses(r.Context(), id.UserID, month)
	if err != nil {
		s.fetchFailed(w, r, err)
		return
	}
	m.Form = form
	m.Errors = errs
	m.Notice = notice

	if !isHTMX(r) {
		s.renderDashboard(w, r, status, month, nil, &m)
		return
	}
	s.render(w, r, status, expenseManagerTemplate, m)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	ctx := r.Context()
	month := s.monthFromRequest(r)
	recID := recordID(r)

	view, err := s.expenses.Delete(ctx, id.UserID, recID, month)
	if err != nil {
		status, notice := s.deleteFailed(r, amqp.KindExpenses, recID, err)
		m, ferr := s.loadExpenses(ctx, id.UserID, month)
		if ferr != nil {
			s.fetchFailed(w, r, ferr)
			return
		}
		m.Notice = notice
		if !isHTMX(r) {
			s.renderDashboard(w, r, status, month, nil, &m)
			return
		}
		s.render(w, r, status, expenseManagerTemplate, m)
		return
	}

	s.countDeleted()
	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard?month="+month, http.StatusSeeOther)
		return
	}

	s.noteStale(view.Stale)
	s.renderWith(w, r, afterWrite(amqp.KindExpenses, month, "Expense deleted", false), expenseManagerTemplate, expenseManager{
		Month:  month,
		View:   view,
		Form:   expenseForm{Date: s.today()},
		Errors: fieldErrors{},
	})
}
