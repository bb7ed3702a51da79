// Package store declares the persistence ports used by the services. Each
// backend (memory, sqlite, postgres) implements all of them.
package store

import (
	"context"
	"errors"
	"time"

	"budgetnest/internal/core"
)

var (
	// ErrNotFound is returned when a lookup or owner-scoped delete matches nothing.
	ErrNotFound = core.ErrNotFound
	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

type (
	// RecordStore is the typed CRUD surface for one record kind. Every
	// operation is scoped to an owner.
	RecordStore[T core.Record] interface {
		// Insert assigns ID and CreatedAt when empty and returns the stored record.
		Insert(ctx context.Context, rec T) (T, error)
		// SelectByOwnerAndRange returns the owner's records whose date lies in
		// the inclusive range, newest date first.
		SelectByOwnerAndRange(ctx context.Context, owner string, r core.DateRange) ([]T, error)
		// DeleteByID removes the record only if it belongs to owner.
		DeleteByID(ctx context.Context, owner, id string) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id string) (core.User, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		SessionByID(ctx context.Context, id string) (core.Session, error)
		ExtendSession(ctx context.Context, id string, expiresAt time.Time) error
		DeleteSession(ctx context.Context, id string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}

	IncomeStore  = RecordStore[core.Income]
	ExpenseStore = RecordStore[core.Expense]
)
