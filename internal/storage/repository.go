package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetnest/internal/core"
	"budgetnest/internal/store"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ store.UserStore    = (*SQLiteRepository)(nil)
	_ store.SessionStore = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so the schema is in place.
	schema, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite schema ready", "path", dbPath, "version", schema.Version, "migrated", schema.Applied)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Income() store.IncomeStore { return sqliteIncome{r} }

func (r *SQLiteRepository) Expenses() store.ExpenseStore { return sqliteExpenses{r} }

func (r *SQLiteRepository) Users() store.UserStore { return r }

func (r *SQLiteRepository) Sessions() store.SessionStore { return r }

type sqliteIncome struct{ r *SQLiteRepository }

func (s sqliteIncome) Insert(ctx context.Context, rec core.Income) (core.Income, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.r.now().UTC()
	}

	_, err := s.r.db.ExecContext(ctx,
		`INSERT INTO income (id, user_id, source, amount_cents, date, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.Source, rec.Amount.Cents, rec.Date.String(), formatTime(rec.CreatedAt))
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}

	slog.InfoContext(ctx, "Income saved to SQLite",
		"id", rec.ID,
		"user_id", rec.OwnerID,
		"amount_cents", rec.Amount.Cents,
		"date", rec.Date.String())

	return rec, nil
}

func (s sqliteIncome) SelectByOwnerAndRange(ctx context.Context, owner string, rng core.DateRange) ([]core.Income, error) {
	rows, err := s.r.db.QueryContext(ctx,
		`SELECT id, user_id, source, amount_cents, date, created_at
		   FROM income
		  WHERE user_id = ? AND date >= ? AND date <= ?
		  ORDER BY date DESC, created_at DESC`,
		owner, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}
	defer rows.Close()

	out := make([]core.Income, 0)
	for rows.Next() {
		var (
			rec             core.Income
			date, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Source, &rec.Amount.Cents, &date, &createdAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if rec.Date, err = scanDate(date); err != nil {
			return nil, fmt.Errorf("scan income %s: %w", rec.ID, err)
		}
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate income: %w", err)
	}
	return out, nil
}

func (s sqliteIncome) DeleteByID(ctx context.Context, owner, id string) error {
	return s.r.deleteOwned(ctx, "income", owner, id)
}

type sqliteExpenses struct{ r *SQLiteRepository }

func (s sqliteExpenses) Insert(ctx context.Context, rec core.Expense) (core.Expense, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.r.now().UTC()
	}

	_, err := s.r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, category, description, amount_cents, date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, string(rec.Category), rec.Description, rec.Amount.Cents, rec.Date.String(), formatTime(rec.CreatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", rec.ID,
		"user_id", rec.OwnerID,
		"category", rec.Category,
		"amount_cents", rec.Amount.Cents,
		"date", rec.Date.String())

	return rec, nil
}

func (s sqliteExpenses) SelectByOwnerAndRange(ctx context.Context, owner string, rng core.DateRange) ([]core.Expense, error) {
	rows, err := s.r.db.QueryContext(ctx,
		`SELECT id, user_id, category, description, amount_cents, date, created_at
		   FROM expenses
		  WHERE user_id = ? AND date >= ? AND date <= ?
		  ORDER BY date DESC, created_at DESC`,
		owner, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		var (
			rec                       core.Expense
			category, date, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &category, &rec.Description, &rec.Amount.Cents, &date, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		rec.Category = core.Category(category)
		if rec.Date, err = scanDate(date); err != nil {
			return nil, fmt.Errorf("scan expense %s: %w", rec.ID, err)
		}
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s sqliteExpenses) DeleteByID(ctx context.Context, owner, id string) error {
	return s.r.deleteOwned(ctx, "expenses", owner, id)
}

// deleteOwned removes one row of table only when it belongs to owner.
func (r *SQLiteRepository) deleteOwned(ctx context.Context, table, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ? AND user_id = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	slog.InfoContext(ctx, "Record deleted from SQLite", "table", table, "id", id, "user_id", owner)
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, core.NormalizeEmail(u.Email), u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, core.NormalizeEmail(email)))
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, store.ErrNotFound
		}
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, formatTime(s.ExpiresAt), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SessionByID(ctx context.Context, id string) (core.Session, error) {
	var (
		s                    core.Session
		expiresAt, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.UserID, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Session{}, store.ErrNotFound
		}
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	s.ExpiresAt = parseTime(expiresAt)
	s.CreatedAt = parseTime(createdAt)
	return s, nil
}

func (r *SQLiteRepository) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`, formatTime(expiresAt), id)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// scanDate keeps an empty stored date as the zero Date.
func scanDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}
