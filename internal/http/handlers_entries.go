package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"budgetnest/internal/log"
	"budgetnest/internal/store"
)

// monthFromRequest reads the month from the query string first, then from a
// form or JSON body. DELETE requests from htmx carry it in the query.
func (s *Server) monthFromRequest(r *http.Request) string {
	current := s.resolver.CurrentMonth()
	if m := ParseMonthParam(r.URL.Query(), ""); m != "" {
		return m
	}
	if r.Method == http.MethodGet {
		return current
	}
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		return current
	}
	if m := ParseMonthParam(valuesOf(parser, "month"), ""); m != "" {
		return m
	}
	return current
}

func valuesOf(p *RequestBodyParser, keys ...string) url.Values {
	out := make(url.Values, len(keys))
	for _, k := range keys {
		if v := p.Get(k); v != "" {
			out[k] = []string{v}
		}
	}
	return out
}

func recordID(r *http.Request) string {
	return sanitizeInput(chi.URLParam(r, "id"))
}

// fetchFailed answers a request whose list fetch could not complete. Only
// cancellation and malformed months get here: store failures come back as
// stale views.
func (s *Server) fetchFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.DebugContext(r.Context(), "Request cancelled during fetch", log.FieldError, err)
		return
	}
	s.logger.ErrorContext(r.Context(), "Fetch failed", log.FieldError, err, log.FieldPath, r.URL.Path)
	InternalServerError("Could not load your entries. Please try again.").Write(w)
}

// deleteFailed maps a delete error to a status and the notice shown above the
// re-rendered list.
func (s *Server) deleteFailed(r *http.Request, kind, id string, err error) (status int, notice string) {
	if errors.Is(err, store.ErrNotFound) {
		s.logger.InfoContext(r.Context(), "Delete of unknown record", log.FieldRecordKind, kind, log.FieldRecordID, id)
		return http.StatusNotFound, "That entry no longer exists."
	}
	s.logger.ErrorContext(r.Context(), "Delete failed",
		log.FieldRecordKind, kind, log.FieldRecordID, id, log.FieldError, err)
	return http.StatusInternalServerError, "Could not delete the entry. Please try again."
}

func (s *Server) noteStale(stale bool) {
	if stale {
		atomic.AddInt64(&s.appMetrics.staleViews, 1)
	}
}

// afterWrite builds the htmx response for a successful create or delete.
func afterWrite(kind, month, message string, created bool) *HTMXResponseBuilder {
	b := NewHTMXResponse().TriggerOverviewRefresh(month).TriggerSuccessNotification(message)
	if created {
		return b.TriggerRecordCreated(kind, month)
	}
	return b.TriggerRecordDeleted(kind, month)
}
