// Package postgres implements the store ports on a hosted PostgreSQL database
// through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"budgetnest/internal/core"
	"budgetnest/internal/store"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ store.UserStore    = (*Repository)(nil)
	_ store.SessionStore = (*Repository)(nil)
)

// New migrates the schema and opens a pool.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool, now: time.Now}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Income() store.IncomeStore { return pgIncome{r} }

func (r *Repository) Expenses() store.ExpenseStore { return pgExpenses{r} }

func (r *Repository) Users() store.UserStore { return r }

func (r *Repository) Sessions() store.SessionStore { return r }

// DateBounds converts an inclusive text range into real dates. A DATE column
// rejects "2025-02-31", so day numbers past the end of the month clamp to the
// last day.
func DateBounds(rng core.DateRange) (time.Time, time.Time, error) {
	start, err := clampDate(rng.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := clampDate(rng.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func clampDate(s string) (time.Time, error) {
	var y, m, d int
	if _, err := fmt.Sscanf(s, "%04d-%02d-%02d", &y, &m, &d); err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
	}
	last := time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d > last {
		d = last
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), nil
}

// isUUID reports whether s can be bound to a UUID column. Anything else
// cannot match a row, and sending it would fail the cast server side.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

type pgIncome struct{ r *Repository }

func (s pgIncome) Insert(ctx context.Context, rec core.Income) (core.Income, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.r.now().UTC()
	}

	_, err := s.r.pool.Exec(ctx,
		`INSERT INTO income (id, user_id, source, amount_cents, date, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.OwnerID, rec.Source, rec.Amount.Cents, rec.Date.Time, rec.CreatedAt)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}

	slog.InfoContext(ctx, "Income saved to Postgres", "id", rec.ID, "user_id", rec.OwnerID, "amount_cents", rec.Amount.Cents)
	return rec, nil
}

func (s pgIncome) SelectByOwnerAndRange(ctx context.Context, owner string, rng core.DateRange) ([]core.Income, error) {
	if rng.IsZero() || !isUUID(owner) {
		return []core.Income{}, nil
	}
	start, end, err := DateBounds(rng)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}

	rows, err := s.r.pool.Query(ctx,
		`SELECT id::text, user_id::text, source, amount_cents, date, created_at
		   FROM income
		  WHERE user_id = $1 AND date >= $2 AND date <= $3
		  ORDER BY date DESC, created_at DESC`,
		owner, start, end)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Income, error) {
		var (
			rec  core.Income
			date time.Time
		)
		err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Source, &rec.Amount.Cents, &date, &rec.CreatedAt)
		rec.Date = core.DateOf(date)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan income: %w", err)
	}
	return out, nil
}

func (s pgIncome) DeleteByID(ctx context.Context, owner, id string) error {
	return s.r.deleteOwned(ctx, "income", owner, id)
}

type pgExpenses struct{ r *Repository }

func (s pgExpenses) Insert(ctx context.Context, rec core.Expense) (core.Expense, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.r.now().UTC()
	}

	_, err := s.r.pool.Exec(ctx,
		`INSERT INTO expenses (id, user_id, category, description, amount_cents, date, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.OwnerID, string(rec.Category), rec.Description, rec.Amount.Cents, rec.Date.Time, rec.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to Postgres", "id", rec.ID, "user_id", rec.OwnerID, "category", rec.Category)
	return rec, nil
}

func (s pgExpenses) SelectByOwnerAndRange(ctx context.Context, owner string, rng core.DateRange) ([]core.Expense, error) {
	if rng.IsZero() || !isUUID(owner) {
		return []core.Expense{}, nil
	}
	start, end, err := DateBounds(rng)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	rows, err := s.r.pool.Query(ctx,
		`SELECT id::text, user_id::text, category, description, amount_cents, date, created_at
		   FROM expenses
		  WHERE user_id = $1 AND date >= $2 AND date <= $3
		  ORDER BY date DESC, created_at DESC`,
		owner, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Expense, error) {
		var (
			rec      core.Expense
			category string
			date     time.Time
		)
		err := row.Scan(&rec.ID, &rec.OwnerID, &category, &rec.Description, &rec.Amount.Cents, &date, &rec.CreatedAt)
		rec.Category = core.Category(category)
		rec.Date = core.DateOf(date)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan expenses: %w", err)
	}
	return out, nil
}

func (s pgExpenses) DeleteByID(ctx context.Context, owner, id string) error {
	return s.r.deleteOwned(ctx, "expenses", owner, id)
}

func (r *Repository) deleteOwned(ctx context.Context, table, owner, id string) error {
	if !isUUID(id) || !isUUID(owner) {
		return store.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	slog.InfoContext(ctx, "Record deleted from Postgres", "table", table, "id", id, "user_id", owner)
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, core.NormalizeEmail(u.Email), u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT id::text, email, password_hash, created_at FROM users WHERE email = $1`, core.NormalizeEmail(email)))
}

func (r *Repository) UserByID(ctx context.Context, id string) (core.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.User{}, store.ErrNotFound
	}
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT id::text, email, password_hash, created_at FROM users WHERE id = $1`, id))
}

func scanUser(row pgx.Row) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.User{}, store.ErrNotFound
		}
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *Repository) CreateSession(ctx context.Context, s core.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *Repository) SessionByID(ctx context.Context, id string) (core.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.Session{}, store.ErrNotFound
	}
	var s core.Session
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, user_id::text, expires_at, created_at FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Session{}, store.ErrNotFound
		}
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *Repository) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET expires_at = $1 WHERE id = $2`, expiresAt, id)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
