package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"budgetnest/internal/core"
	"budgetnest/internal/log"
	"budgetnest/internal/store"
)

const (
	DefaultIssuer   = "budgetnest"
	minPasswordLen  = 6
	minSecretLength = 32
)

// Config controls token signing and session lifetime.
type Config struct {
	Secret        []byte
	Issuer        string
	TTL           time.Duration
	RefreshWindow time.Duration
	BcryptCost    int
	Now           func() time.Time
}

// Service implements Gateway on top of the user and session stores.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	cfg      Config
	subs     subscribers
	logger   *log.Logger
}

var _ Gateway = (*Service)(nil)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewService(users store.UserStore, sessions store.SessionStore, cfg Config, logger *log.Logger) (*Service, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if cfg.RefreshWindow < 0 || cfg.RefreshWindow >= cfg.TTL {
		return nil, errors.New("refresh window must be between 0 and the session ttl")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	return &Service{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentAuth),
	}, nil
}

func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = core.NormalizeEmail(email)
	if !validEmail(email) {
		return Session{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return Session{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.cfg.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return Session{}, ErrUserExists
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, user.ID, log.FieldOperation, log.OpSignUp)
	return s.startSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = core.NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Sign in rejected", log.FieldUserID, user.ID, log.FieldOperation, log.OpSignIn)
		return Session{}, ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

func (s *Service) startSession(ctx context.Context, user core.User) (Session, error) {
	now := s.cfg.Now().UTC()
	sess := core.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	id := Identity{UserID: user.ID, Email: user.Email, SessionID: sess.ID, ExpiresAt: sess.ExpiresAt}
	token, err := s.sign(id, now)
	if err != nil {
		return Session{}, err
	}

	s.logger.InfoContext(ctx, "Session started", log.FieldUserID, user.ID, log.FieldSessionID, sess.ID)
	s.subs.emit(Event{Kind: EventSignedIn, Identity: id, At: now})
	return Session{Token: token, Identity: id, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *Service) CurrentIdentity(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrNoIdentity
	}
	c, err := s.parse(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	sess, err := s.sessions.SessionByID(ctx, c.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: session revoked", ErrNoIdentity)
		}
		return Identity{}, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != c.Subject {
		return Identity{}, fmt.Errorf("%w: subject mismatch", ErrNoIdentity)
	}
	if sess.Expired(s.cfg.Now()) {
		return Identity{}, fmt.Errorf("%w: session expired", ErrNoIdentity)
	}

	return Identity{UserID: c.Subject, Email: c.Email, SessionID: sess.ID, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *Service) Refresh(ctx context.Context, token string) (Session, bool, error) {
	id, err := s.CurrentIdentity(ctx, token)
	if err != nil {
		return Session{}, false, err
	}

	now := s.cfg.Now().UTC()
	if id.ExpiresAt.Sub(now) > s.cfg.RefreshWindow {
		return Session{Token: token, Identity: id, ExpiresAt: id.ExpiresAt}, false, nil
	}

	id.ExpiresAt = now.Add(s.cfg.TTL)
	if err := s.sessions.ExtendSession(ctx, id.SessionID, id.ExpiresAt); err != nil {
		return Session{}, false, fmt.Errorf("extend session: %w", err)
	}
	fresh, err := s.sign(id, now)
	if err != nil {
		return Session{}, false, err
	}

	s.logger.DebugContext(ctx, "Session refreshed", log.FieldUserID, id.UserID, log.FieldSessionID, id.SessionID)
	s.subs.emit(Event{Kind: EventRefreshed, Identity: id, At: now})
	return Session{Token: fresh, Identity: id, ExpiresAt: id.ExpiresAt}, true, nil
}

// SignOut revokes the session behind token. Signing out without a valid
// session is not an error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	id, err := s.CurrentIdentity(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			return nil
		}
		return err
	}

	if err := s.sessions.DeleteSession(ctx, id.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.logger.InfoContext(ctx, "Session ended", log.FieldUserID, id.UserID, log.FieldOperation, log.OpSignOut)
	s.subs.emit(Event{Kind: EventSignedOut, Identity: id, At: s.cfg.Now().UTC()})
	return nil
}

func (s *Service) OnIdentityChange(fn func(Event)) func() {
	return s.subs.add(fn)
}

// PurgeExpired deletes session rows past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.cfg.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Expired sessions purged", "count", n)
	}
	return n, nil
}

func (s *Service) sign(id Identity, now time.Time) (string, error) {
	c := claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ID:        id.SessionID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Service) parse(token string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c,
		func(*jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return nil, err
	}
	if c.Subject == "" || c.ID == "" {
		return nil, errors.New("token missing subject or id")
	}
	return c, nil
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
