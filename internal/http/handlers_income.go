package http

import (
	"errors"
	"net/http"

	"budgetnest/internal/amqp"
	"budgetnest/internal/log"
	"budgetnest/internal/services"
)

const incomeManagerTemplate = "income-manager"

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	m, err := s.loadIncome(r.Context(), id.UserID, s.requestMonth(r))
	if err != nil {
		s.fetchFailed(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, incomeManagerTemplate, m)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}

	id, _ := identity(r)
	ctx := r.Context()
	month := ParseMonthParam(r.PostForm, s.resolver.CurrentMonth())
	form := readIncomeForm(r.PostForm)

	rec, errs := form.Income(id.UserID)
	if errs.Any() {
		s.rejectIncome(w, r, http.StatusUnprocessableEntity, month, form, errs, "")
		return
	}

	saved, view, err := s.income.Create(ctx, id.UserID, rec, month)
	if err != nil {
		if errs.addErr(err) {
			s.rejectIncome(w, r, http.StatusUnprocessableEntity, month, form, errs, "")
			return
		}
		if errors.Is(err, services.ErrOwnerMismatch) {
			s.rejectIncome(w, r, http.StatusForbidden, month, form, errs, "This entry does not belong to your account.")
			return
		}
		s.logger.ErrorContext(ctx, "Failed to save income",
			log.NewFields().WithUser(id.UserID).WithError(err).WithOperation(log.OpCreate).ToSlice()...)
		s.rejectIncome(w, r, http.StatusInternalServerError, month, form, errs, "Could not save the income. Please try again.")
		return
	}

	s.countCreated(amqp.KindIncome)
	s.logger.InfoContext(ctx, "Income created",
		log.NewFields().WithRecord(amqp.KindIncome, saved.ID, id.UserID, saved.Amount.Cents).ToSlice()...)

	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard?month="+month, http.StatusSeeOther)
		return
	}

	s.noteStale(view.Stale)
	s.renderWith(w, r, afterWrite(amqp.KindIncome, month, "Income added", true), incomeManagerTemplate, incomeManager{
		Month:  month,
		View:   view,
		Form:   incomeForm{Date: form.Date},
		Errors: fieldErrors{},
	})
}

// rejectIncome shows the form again with the submitted values.
func (s *Server) rejectIncome(w http.ResponseWriter, r *http.Request, status int, month string, form incomeForm, errs fieldErrors, notice string) {
	id, _ := identity(r)
	m, err := s.loadIncome(r.Context(), id.UserID, month)
	if err != nil {
		s.fetchFailed(w, r, err)
		return
	}
	m.Form = form
	m.Errors = errs
	m.Notice = notice

	if !isHTMX(r) {
		s.renderDashboard(w, r, status, month, &m, nil)
		return
	}
	s.render(w, r, status, incomeManagerTemplate, m)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, _ := identity(r)
	ctx := r.Context()
	month := s.monthFromRequest(r)
	recID := recordID(r)

	view, err := s.income.Delete(ctx, id.UserID, recID, month)
	if err != nil {
		status, notice := s.deleteFailed(r, amqp.KindIncome, recID, err)
		m, ferr := s.loadIncome(ctx, id.UserID, month)
		if ferr != nil {
			s.fetchFailed(w, r, ferr)
			return
		}
		m.Notice = notice
		if !isHTMX(r) {
			s.renderDashboard(w, r, status, month, &m, nil)
			return
		}
		s.render(w, r, status, incomeManagerTemplate, m)
		return
	}

	s.countDeleted()
	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard?month="+month, http.StatusSeeOther)
		return
	}

	s.noteStale(view.Stale)
	s.renderWith(w, r, afterWrite(amqp.KindIncome, month, "Income deleted", false), incomeManagerTemplate, incomeManager{
		Month:  month,
		View:   view,
		Form:   incomeForm{Date: s.today()},
		Errors: fieldErrors{},
	})
}
