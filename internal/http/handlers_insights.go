package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"budgetnest/internal/core"
	"budgetnest/internal/insights"
	"budgetnest/internal/log"
	"budgetnest/internal/services"
)

// donutSlice is one arc of the expense breakdown. The circle has a
// circumference of 100 so percentages map straight onto the dash array.
type donutSlice struct {
	Label   string
	Amount  core.Money
	Color   string
	Percent string
	Dash    string
	Offset  string
}

type insightsPage struct {
	pageData
	Params PeriodParams
	Report services.Report
	Max    core.Money
	Slices []donutSlice
	Error  string
}

func (p insightsPage) PrevOffset() int { return p.Params.Offset - 1 }
func (p insightsPage) NextOffset() int { return p.Params.Offset + 1 }

func buildSlices(categories []insights.CategoryTotal) []donutSlice {
	total := insights.Total(categories)
	if total.Cents <= 0 {
		return nil
	}

	out := make([]donutSlice, 0, len(categories))
	// arcs start at 12 o'clock
	cursor := 25.0
	for i, c := range categories {
		pct := float64(c.Amount.Cents) * 100 / float64(total.Cents)
		out = append(out, donutSlice{
			Label:   c.Category,
			Amount:  c.Amount,
			Color:   insights.Color(i),
			Percent: strconv.FormatFloat(pct, 'f', 1, 64),
			Dash:    strconv.FormatFloat(pct, 'f', 2, 64) + " " + strconv.FormatFloat(100-pct, 'f', 2, 64),
			Offset:  strconv.FormatFloat(cursor, 'f', 2, 64),
		})
		cursor -= pct
	}
	return out
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	params := ParsePeriodParams(r.URL.Query())
	page := insightsPage{
		pageData: newPage(r, "Insights", "insights"),
		Params:   params,
	}

	name := "insights.html"
	if isHTMX(r) {
		name = "insights-panel"
	}

	id, ok := identity(r)
	if !ok {
		s.render(w, r, http.StatusOK, name, page)
		return
	}

	report, err := s.insights.Build(r.Context(), id.UserID, params.Kind, params.Offset)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.ErrorContext(r.Context(), "Insights failed",
			log.NewFields().WithUser(id.UserID).WithPeriod(string(params.Kind), params.Offset).WithError(err).ToSlice()...)
		page.Error = "Could not load your insights. Please try again."
		page.Report = services.Report{
			Period: params.Kind,
			Offset: params.Offset,
			Range:  s.resolver.Range(params.Kind, params.Offset),
			Label:  s.resolver.Label(params.Kind, params.Offset),
		}
		s.render(w, r, http.StatusInternalServerError, name, page)
		return
	}

	page.Report = report
	page.Max = insights.Max(report.Series)
	page.Slices = buildSlices(report.Categories)
	s.render(w, r, http.StatusOK, name, page)
}

func (s *Server) handleInsightsAPI(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	params := ParsePeriodParams(r.URL.Query())
	report, err := s.insights.Build(r.Context(), id.UserID, params.Kind, params.Offset)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.ErrorContext(r.Context(), "Insights API failed",
			log.NewFields().WithUser(id.UserID).WithPeriod(string(params.Kind), params.Offset).WithError(err).ToSlice()...)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "insights unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
