// Package memory is a process-local implementation of the store ports, used
// for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetnest/internal/core"
	"budgetnest/internal/store"
)

// Store keeps every table behind one mutex.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	income   []core.Income
	expenses []core.Expense
	users    map[string]core.User
	sessions map[string]core.Session
}

var (
	_ store.UserStore    = (*Store)(nil)
	_ store.SessionStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[string]core.User),
		sessions: make(map[string]core.Session),
	}
}

// WithClock overrides the time source used for CreatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Income returns the income record store.
func (s *Store) Income() store.IncomeStore { return incomeTable{s} }

// Expenses returns the expense record store.
func (s *Store) Expenses() store.ExpenseStore { return expenseTable{s} }

func (s *Store) Users() store.UserStore { return s }

func (s *Store) Sessions() store.SessionStore { return s }

type incomeTable struct{ s *Store }

func (t incomeTable) Insert(_ context.Context, rec core.Income) (core.Income, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.s.now().UTC()
	}
	t.s.income = append(t.s.income, rec)
	return rec, nil
}

func (t incomeTable) SelectByOwnerAndRange(_ context.Context, owner string, r core.DateRange) ([]core.Income, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]core.Income, 0)
	for _, rec := range t.s.income {
		if rec.OwnerID == owner && r.Contains(rec.Date.String()) {
			out = append(out, rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (t incomeTable) DeleteByID(_ context.Context, owner, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, rec := range t.s.income {
		if rec.ID == id && rec.OwnerID == owner {
			t.s.income = append(t.s.income[:i], t.s.income[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type expenseTable struct{ s *Store }

func (t expenseTable) Insert(_ context.Context, rec core.Expense) (core.Expense, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.s.now().UTC()
	}
	t.s.expenses = append(t.s.expenses, rec)
	return rec, nil
}

func (t expenseTable) SelectByOwnerAndRange(_ context.Context, owner string, r core.DateRange) ([]core.Expense, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, rec := range t.s.expenses {
		if rec.OwnerID == owner && r.Contains(rec.Date.String()) {
			out = append(out, rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (t expenseTable) DeleteByID(_ context.Context, owner, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, rec := range t.s.expenses {
		if rec.ID == id && rec.OwnerID == owner {
			t.s.expenses = append(t.s.expenses[:i], t.s.expenses[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// sortNewestFirst orders by date descending, then by creation time descending.
func sortNewestFirst[T core.Record](recs []T) {
	sort.SliceStable(recs, func(i, j int) bool {
		di, dj := recs[i].RecordDate().String(), recs[j].RecordDate().String()
		if di != dj {
			return di > dj
		}
		return recs[i].Created().After(recs[j].Created())
	})
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := core.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return store.ErrDuplicateEmail
		}
	}
	u.Email = email
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = core.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, store.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now().UTC()
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) SessionByID(_ context.Context, id string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) ExtendSession(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.ExpiresAt = expiresAt
	s.sessions[id] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
