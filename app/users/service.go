// Package users contains registration, authentication and preference
// management for accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/savkin/prefeed/app/store"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// ErrBadCredentials is returned when the password does not match the
// stored hash.
var ErrBadCredentials = errors.New("bad login credentials")

// ErrTokenExpired is returned for tokens past their expiry.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid is returned for malformed or tampered tokens.
var ErrTokenInvalid = errors.New("token invalid")

// Claims are carried by issued tokens.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Service handles user accounts and their topic preferences.
type Service struct {
	log        *slog.Logger
	store      store.Interface
	secret     []byte
	issuer     string
	tokenTTL   time.Duration
	bcryptCost int
}

// NewService creates new service.
func NewService(lg *slog.Logger, st store.Interface, secret, issuer string,
	tokenTTL time.Duration, bcryptCost int) *Service {
	return &Service{
		log:        lg,
		store:      st,
		secret:     []byte(secret),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
	}
}

// Register creates an account with a bcrypt-hashed password; the initial
// topic preferences are persisted atomically with it.
func (s *Service) Register(ctx context.Context, name, email, password string, topics []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := store.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Create(ctx, u, topics); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	s.log.InfoCtx(ctx, "registered user", slog.String("user_id", u.ID))

	return nil
}

// Login checks the credentials and returns a signed token. A missing
// account surfaces as store.ErrNotFound, distinct from a wrong password.
func (s *Service) Login(ctx context.Context, email, password, audience string) (string, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}

	now := time.Now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			Issuer:    s.issuer,
			Subject:   "authenticate-user",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return token, nil
}

// VerifyToken parses and validates a token issued by Login.
func (s *Service) VerifyToken(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrTokenExpired
	default:
		return Claims{}, ErrTokenInvalid
	}
}

// Preferences returns the user's preferred topics.
func (s *Service) Preferences(ctx context.Context, userID string) ([]string, error) {
	topics, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}

	return topics, nil
}

// UpdatePreferences adds topics to the user's set; topics already present
// are left untouched.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, topics []string) error {
	if err := s.store.UpsertPreferences(ctx, userID, topics); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}

	return nil
}
