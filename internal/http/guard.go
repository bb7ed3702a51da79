package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"budgetnest/internal/auth"
	"budgetnest/internal/log"
)

const (
	loginPath     = "/login"
	dashboardPath = "/dashboard"
)

// guard resolves the caller's identity on every request and enforces the
// two redirects: protected pages need an identity, the login page must not
// have one. Sessions inside the refresh window are re-issued on the way.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok, err := s.resolveIdentity(w, r)
		if ok {
			r = r.WithContext(auth.WithIdentity(r.Context(), id))
		}

		switch {
		case err != nil && isProtected(r.URL.Path):
			// The cookie stays; the next request retries the lookup.
			ServiceUnavailableError("Your session could not be checked. Please try again.").Write(w)
			return
		case !ok && isProtected(r.URL.Path):
			s.logger.DebugContext(r.Context(), "Unauthenticated request to protected page", log.FieldPath, r.URL.Path)
			if isHTMX(r) {
				UnauthorizedError(loginPath).Write(w)
				return
			}
			http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
			return
		case ok && r.URL.Path == loginPath:
			if isHTMX(r) {
				w.Header().Set("HX-Redirect", dashboardPath)
			}
			http.Redirect(w, r, dashboardPath, http.StatusTemporaryRedirect)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isProtected(path string) bool {
	return path == dashboardPath || strings.HasPrefix(path, dashboardPath+"/")
}

// resolveIdentity reads the session cookie and asks the gateway for the
// identity behind it, refreshing the session when it is close to expiry.
// A cookie that no longer maps to a session is cleared. Any other lookup
// failure is returned and leaves the cookie in place.
func (s *Server) resolveIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool, error) {
	token := sessionToken(r)
	if token == "" {
		return auth.Identity{}, false, nil
	}

	sess, refreshed, err := s.gateway.Refresh(r.Context(), token)
	if errors.Is(err, auth.ErrNoIdentity) {
		s.clearSessionCookie(w)
		return auth.Identity{}, false, nil
	}
	if err != nil {
		s.logger.WarnContext(r.Context(), "Session lookup failed", log.FieldError, err)
		return auth.Identity{}, false, err
	}
	if refreshed {
		s.setSessionCookie(w, sess)
	}
	return sess.Identity, true, nil
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(auth.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// identity returns the identity the guard stored for this request.
func identity(r *http.Request) (auth.Identity, bool) {
	return auth.IdentityFrom(r.Context())
}
