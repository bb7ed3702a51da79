package http

import (
	"bytes"
	"html/template"
	"net/http"

	"budgetnest/internal/core"
	"budgetnest/internal/insights"
	"budgetnest/internal/log"
	"budgetnest/internal/period"
	appweb "budgetnest/web"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":       formatMoney,
		"categories":  core.Categories,
		"periodKinds": period.Kinds,
		"color":       insights.Color,
		"add":         func(a, b int) int { return a + b },
		"percentOf":   percentOf,
	}
}

func parseTemplates() (*template.Template, error) {
	return template.New("budgetnest").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// percentOf is v as a whole percentage of max, at least 1 for non-zero v so
// small bars stay visible.
func percentOf(v, max core.Money) int {
	if max.Cents <= 0 || v.Cents <= 0 {
		return 0
	}
	p := int(v.Cents * 100 / max.Cents)
	if p < 1 {
		return 1
	}
	return p
}

// execute renders name into a string so callers can attach triggers before
// anything is written.
func (s *Server) execute(r *http.Request, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err, "template", name, log.FieldOperation, log.OpRender)
		return "", err
	}
	return buf.String(), nil
}

// render writes a whole page or partial with status. A template error never
// leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	s.renderWith(w, r, NewHTMXResponse().Status(status), name, data)
}

// renderWith renders name as the body of b.
func (s *Server) renderWith(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.execute(r, name, data)
	if err != nil {
		InternalServerError("Something went wrong while rendering this page.").Write(w)
		return
	}
	b.BodyHTML(body).Write(w)
}
