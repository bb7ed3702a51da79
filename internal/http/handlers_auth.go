package http

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"budgetnest/internal/auth"
	"budgetnest/internal/log"
)

const (
	modeSignIn = "signin"
	modeSignUp = "signup"
)

type loginPage struct {
	pageData
	// Mode is "" for the welcome screen, otherwise signin or signup.
	Mode  string
	Email string
	Error string
}

func (p loginPage) IsSignUp() bool { return p.Mode == modeSignUp }

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
	if mode != modeSignIn && mode != modeSignUp {
		mode = ""
	}
	s.render(w, r, http.StatusOK, "login.html", loginPage{
		pageData: newPage(r, "Welcome", "login"),
		Mode:     mode,
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, modeSignIn)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, modeSignUp)
}

// handleCredentials runs sign-in or sign-up. Failures re-render the form with
// the gateway's message and the email kept; success sets the session cookie
// and sends the browser to the dashboard.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, mode string) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}

	email := sanitizeInput(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	var (
		sess auth.Session
		err  error
		op   = log.OpSignIn
	)
	if mode == modeSignUp {
		op = log.OpSignUp
		sess, err = s.gateway.SignUp(r.Context(), email, password)
	} else {
		sess, err = s.gateway.SignIn(r.Context(), email, password)
	}

	if err != nil {
		atomic.AddInt64(&s.appMetrics.authFailures, 1)

		status := http.StatusUnauthorized
		var ae *auth.AuthError
		switch {
		case errors.As(err, &ae) && mode == modeSignUp:
			status = http.StatusUnprocessableEntity
		case errors.As(err, &ae):
		default:
			status = http.StatusInternalServerError
			s.logger.ErrorContext(r.Context(), "Authentication failed",
				log.FieldOperation, op, log.FieldError, err)
		}

		s.render(w, r, status, "login.html", loginPage{
			pageData: newPage(r, "Welcome", "login"),
			Mode:     mode,
			Email:    email,
			Error:    auth.UserMessage(err),
		})
		return
	}

	if mode == modeSignUp {
		atomic.AddInt64(&s.appMetrics.signUps, 1)
	} else {
		atomic.AddInt64(&s.appMetrics.signIns, 1)
	}
	s.logger.InfoContext(r.Context(), "Signed in",
		log.FieldUserID, sess.Identity.UserID, log.FieldOperation, op)

	s.setSessionCookie(w, sess)
	s.redirectAfterForm(w, r, dashboardPath)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := s.gateway.SignOut(r.Context(), token); err != nil {
			s.logger.ErrorContext(r.Context(), "Sign out failed", log.FieldError, err)
		}
	}
	s.clearSessionCookie(w)
	s.redirectAfterForm(w, r, loginPath)
}

// redirectAfterForm answers a form post: htmx gets HX-Redirect, plain
// browsers a 303.
func (s *Server) redirectAfterForm(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", target).Write(w)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
