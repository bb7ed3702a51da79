package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"budgetnest/internal/amqp"
	"budgetnest/internal/auth"
	"budgetnest/internal/cache"
	"budgetnest/internal/core"
	"budgetnest/internal/log"
	"budgetnest/internal/middleware/ratelimit"
	"budgetnest/internal/period"
	"budgetnest/internal/services"
	"budgetnest/internal/store/memory"
)

var july15 = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	store  *memory.Store
	auth   *auth.Service
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

func newTestEnvWithStore(t *testing.T, pinger Pinger) *testEnv {
	t.Helper()

	st := memory.New()
	logger := log.Discard()

	gw, err := auth.NewService(st.Users(), st.Sessions(), auth.Config{
		Secret:     []byte(strings.Repeat("s", 32)),
		TTL:        time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, logger)
	require.NoError(t, err)

	resolver := period.NewResolver(func() time.Time { return july15 })
	incomeCache := cache.NewLRUCache[[]core.Income](100, time.Hour)
	expenseCache := cache.NewLRUCache[[]core.Expense](100, time.Hour)

	if pinger == nil {
		pinger = st
	}

	srv, err := NewServer(Options{
		Addr:      ":0",
		RateLimit: ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000},
	}, Dependencies{
		Gateway:  gw,
		Income:   services.NewEntryManager[core.Income](amqp.KindIncome, st.Income(), incomeCache, nil, logger),
		Expenses: services.NewEntryManager[core.Expense](amqp.KindExpenses, st.Expenses(), expenseCache, nil, logger),
		Insights: services.NewInsightsService(st.Income(), st.Expenses(), resolver, logger),
		Resolver: resolver,
		Store:    pinger,
		Caches: map[string]Sizer{
			"income":   incomeCache,
			"expenses": expenseCache,
		},
		Logger: logger,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, store: st, auth: gw}
}

func (e *testEnv) signUp(t *testing.T, email string) auth.Session {
	t.Helper()
	sess, err := e.auth.SignUp(context.Background(), email, "secret123")
	require.NoError(t, err)
	return sess
}

type reqOpt func(*http.Request)

func withSession(sess auth.Session) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: sess.Token})
	}
}

func asHTMX(r *http.Request) { r.Header.Set("HX-Request", "true") }

func (e *testEnv) do(method, target string, form url.Values, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func groceriesForm() url.Values {
	return url.Values{
		"category":    {"Food"},
		"description": {"Groceries"},
		"amount":      {"12.50"},
		"date":        {"2025-07-03"},
		"month":       {"2025-07"},
	}
}

func julyRange() core.DateRange {
	return core.DateRange{Start: "2025-07-01", End: "2025-07-31"}
}

func TestGuard_AnonymousDashboardRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/dashboard", nil)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestGuard_AnonymousHTMXGetsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/dashboard/expenses", nil, asHTMX)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
}

func TestGuard_SignedInLoginRedirectsToDashboard(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodGet, "/login", nil, withSession(sess))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestGuard_RootRedirectsToDashboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestGuard_InvalidCookieIsCleared(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/dashboard", nil, withSession(auth.Session{Token: "not-a-token"}))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "session cookie should be cleared")
}

// unreachableSessions fails every session lookup the way a dropped store
// connection does.
type unreachableSessions struct {
	auth.Gateway
}

func (unreachableSessions) Refresh(context.Context, string) (auth.Session, bool, error) {
	return auth.Session{}, false, errors.New("get session: connection reset by peer")
}

func TestGuard_SessionLookupFailureKeepsCookie(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")
	env.server.gateway = unreachableSessions{Gateway: env.auth}

	rec := env.do(http.MethodGet, "/dashboard", nil, withSession(sess))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, auth.CookieName, c.Name, "session cookie must survive a failed lookup")
	}

	// Once the store answers again the same cookie still works.
	env.server.gateway = env.auth
	rec = env.do(http.MethodGet, "/dashboard", nil, withSession(sess))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_WelcomeAndForms(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Simple, smart budgeting for everyday use.")
	assert.Contains(t, rec.Body.String(), "Already a Member? Sign In")

	rec = env.do(http.MethodGet, "/login?mode=signup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/auth/signup"`)
	assert.Contains(t, rec.Body.String(), "Email Address")
}

func TestSignUp_SetsCookieAndRedirects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/signup", url.Values{
		"email":    {"new@example.com"},
		"password": {"secret123"},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	rec = env.do(http.MethodGet, "/dashboard", nil, withSession(auth.Session{Token: cookie.Value}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "new@example.com")
}

func TestSignUp_HTMXGetsRedirectHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/signup", url.Values{
		"email":    {"htmx@example.com"},
		"password": {"secret123"},
	}, asHTMX)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("HX-Redirect"))
}

func TestSignIn_FailureShowsMessage(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/auth/signin", url.Values{
		"email":    {"ana@example.com"},
		"password": {"wrong-password"},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Invalid login credentials")
	assert.Contains(t, body, `value="ana@example.com"`)
}

func TestSignUp_WeakPasswordIsUnprocessable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/signup", url.Values{
		"email":    {"ana@example.com"},
		"password": {"123"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Password should be at least 6 characters.")
}

func TestSignOut_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/auth/signout", url.Values{}, withSession(sess))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = env.do(http.MethodGet, "/dashboard", nil, withSession(sess))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
}

func TestDashboard_RendersMonth(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodGet, "/dashboard?month=2025-07", nil, withSession(sess))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Track your income and expenses with ease.")
	assert.Contains(t, body, "No income added this month.")
	assert.Contains(t, body, "No expenses recorded this month.")
	assert.Contains(t, body, "month=2025-06")
	assert.Contains(t, body, "month=2025-08")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestExpenses_CreateListDelete(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Groceries")
	assert.Contains(t, body, "₹12.50")
	assert.Contains(t, body, "Food • 2025-07-03")
	trigger := rec.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, EventRecordCreated)
	assert.Contains(t, trigger, EventOverviewRefresh)
	assert.Contains(t, trigger, "Expense added")

	rec = env.do(http.MethodGet, "/dashboard/expenses?month=2025-07", nil, withSession(sess))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Groceries")

	rec = env.do(http.MethodGet, "/dashboard/overview?month=2025-07", nil, withSession(sess))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "-₹12.50")

	recs, err := env.store.Expenses().SelectByOwnerAndRange(context.Background(), sess.Identity.UserID, julyRange())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec = env.do(http.MethodDelete, "/dashboard/expenses/"+recs[0].ID+"?month=2025-07", nil, withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No expenses recorded this month.")
	assert.Contains(t, rec.Header().Get("HX-Trigger"), EventRecordDeleted)
}

func TestExpenses_OtherMonthNotListed(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/dashboard/expenses?month=2025-08", nil, withSession(sess))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Groceries")
	assert.Contains(t, rec.Body.String(), "No expenses recorded this month.")
}

func TestExpenses_PlainFormRedirects(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(sess))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?month=2025-07", rec.Header().Get("Location"))
}

func TestExpenses_InvalidFormKeepsValues(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	form := url.Values{
		"category":    {"Transport"},
		"description": {"Bus ticket"},
		"amount":      {"0"},
		"date":        {"2025-07-04"},
		"month":       {"2025-07"},
	}
	rec := env.do(http.MethodPost, "/dashboard/expenses", form, withSession(sess), asHTMX)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Enter an amount of at least 0.01.")
	assert.Contains(t, body, `value="Bus ticket"`)
	assert.Contains(t, body, `value="Transport" selected`)

	recs, err := env.store.Expenses().SelectByOwnerAndRange(context.Background(), sess.Identity.UserID, julyRange())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExpenses_UnknownCategoryRejected(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	form := groceriesForm()
	form.Set("category", "Travel")
	rec := env.do(http.MethodPost, "/dashboard/expenses", form, withSession(sess), asHTMX)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Choose one of the listed categories.")
}

func TestIncome_CreateAndDeleteFallback(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/income", url.Values{
		"source": {"Salary"},
		"amount": {"1500"},
		"date":   {"2025-07-01"},
		"month":  {"2025-07"},
	}, withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "₹1500.00")
	assert.Contains(t, rec.Header().Get("HX-Trigger"), "Income added")

	recs, err := env.store.Income().SelectByOwnerAndRange(context.Background(), sess.Identity.UserID, julyRange())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec = env.do(http.MethodPost, "/dashboard/income/"+recs[0].ID+"/delete", url.Values{"month": {"2025-07"}}, withSession(sess))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?month=2025-07", rec.Header().Get("Location"))

	recs, err = env.store.Income().SelectByOwnerAndRange(context.Background(), sess.Identity.UserID, julyRange())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestIncome_MissingSourceRejected(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/income", url.Values{
		"source": {"   "},
		"amount": {"10"},
		"date":   {""},
		"month":  {"2025-07"},
	}, withSession(sess), asHTMX)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Source is required.")
	assert.Contains(t, body, "Date is required.")
}

func TestDelete_OtherOwnersRecordIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ana := env.signUp(t, "ana@example.com")
	bob := env.signUp(t, "bob@example.com")

	rec := env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(ana), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)

	recs, err := env.store.Expenses().SelectByOwnerAndRange(context.Background(), ana.Identity.UserID, julyRange())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec = env.do(http.MethodDelete, "/dashboard/expenses/"+recs[0].ID+"?month=2025-07", nil, withSession(bob), asHTMX)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "That entry no longer exists.")

	recs, err = env.store.Expenses().SelectByOwnerAndRange(context.Background(), ana.Identity.UserID, julyRange())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestInsightsAPI(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/insights", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	sess := env.signUp(t, "ana@example.com")
	rec = env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/insights?period=month&offset=0", nil, withSession(sess))
	require.Equal(t, http.StatusOK, rec.Code)

	var report services.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, period.Month, report.Period)
	assert.Equal(t, "2025-07-01", report.Range.Start)
	assert.Equal(t, "2025-07-31", report.Range.End)
	assert.Equal(t, int64(1250), report.Expenses.Cents)
	require.Len(t, report.Categories, 1)
	assert.Equal(t, "Food", report.Categories[0].Category)
}

func TestInsightsPage(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/insights", nil, withSession(sess))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Income &amp; Expense Over Time")
	assert.Contains(t, body, "Expense Breakdown")
	assert.Contains(t, body, "<html")

	rec = env.do(http.MethodGet, "/insights?period=week&offset=-1", nil, withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="insights-panel"`)
	assert.NotContains(t, rec.Body.String(), "<html")

	rec = env.do(http.MethodGet, "/insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in to see your insights.")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)

	down := newTestEnvWithStore(t, failingPinger{})
	rec = down.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "ana@example.com")

	rec := env.do(http.MethodPost, "/dashboard/expenses", groceriesForm(), withSession(sess), asHTMX)
	require.Equal(t, http.StatusOK, rec.Code)
	env.do(http.MethodPost, "/auth/signin", url.Values{"email": {"ana@example.com"}, "password": {"nope-nope"}})

	rec = env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `records_created_total{kind="expenses"} 1`)
	assert.Contains(t, body, "auth_failures_total 1")
	assert.Contains(t, body, `cache_entries{type="expenses"}`)
	assert.Contains(t, body, "# TYPE uptime_seconds gauge")
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/static/app.css", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=3600")
}
