package app

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"accessmap/internal/domain"
)

const (
	minPasswordLength = 6
	tokenIssuer       = "accessmap"
)

type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// AuthService owns session lifecycle: created on sign-in, removed on sign-out,
// read-only everywhere else.
type AuthService struct {
	idp      domain.IdentityProvider
	sessions domain.SessionStore
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(idp domain.IdentityProvider, sessions domain.SessionStore, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{idp: idp, sessions: sessions, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (domain.User, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, &domain.ValidationError{Field: "email", Reason: "a valid email is required"}
	}
	if len(password) < minPasswordLength {
		return domain.User{}, &domain.ValidationError{Field: "password", Reason: "password must be at least 6 characters"}
	}
	if displayName == "" {
		return domain.User{}, &domain.ValidationError{Field: "displayName", Reason: "display name is required"}
	}
	u, err := s.idp.CreateAccount(ctx, email, password, displayName)
	if err != nil {
		return domain.User{}, domain.Remote("createAccount", err)
	}
	log.Info().Str("user", u.ID).Msg("account created")
	return u, nil
}

// SignIn verifies credentials and returns a stored session plus the bearer
// token that refers to it.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.Session, string, error) {
	u, err := s.idp.VerifyPassword(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, "", domain.Remote("signIn", err)
	}

	now := s.now().UTC()
	sess := &domain.Session{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &sessionClaims{
		Email: sess.Email,
		Name:  sess.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}).SignedString(s.secret)
	if err != nil {
		return nil, "", err
	}
	if err := s.sessions.Put(ctx, *sess, s.ttl); err != nil {
		return nil, "", domain.Remote("putSession", err)
	}
	return sess, tok, nil
}

func (s *AuthService) SignOut(ctx context.Context, sess *domain.Session) error {
	if sess == nil {
		return domain.ErrAuthRequired
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Remote("deleteSession", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its live session. Tokens of
// signed-out sessions are rejected even before they expire.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, domain.ErrAuthRequired
	}

	sess, err := s.sessions.Get(ctx, claims.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrAuthRequired
	}
	if err != nil {
		return nil, domain.Remote("getSession", err)
	}
	if sess.UserID != claims.Subject || sess.Expired(s.now()) {
		return nil, domain.ErrAuthRequired
	}
	return &sess, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// LocalIdentity keeps bcrypt password hashes next to the user profile.
type LocalIdentity struct {
	users domain.UserRepository
	cost  int
}

func NewLocalIdentity(users domain.UserRepository, cost int) *LocalIdentity {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalIdentity{users: users, cost: cost}
}

func (l *LocalIdentity) CreateAccount(ctx context.Context, email, password, displayName string) (domain.User, error) {
	if _, err := l.users.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, domain.ErrAccountExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return domain.User{}, err
	}
	rec := domain.UserRecord{
		User: domain.User{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: displayName,
			CreatedAt:   time.Now().UTC(),
		},
		PasswordHash: string(hash),
	}
	if err := l.users.CreateUser(ctx, rec); err != nil {
		return domain.User{}, err
	}
	return rec.User, nil
}

func (l *LocalIdentity) VerifyPassword(ctx context.Context, email, password string) (domain.User, error) {
	rec, err := l.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return rec.User, nil
}
