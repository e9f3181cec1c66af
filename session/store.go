package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	cookieName       = "portal.session-token"
	secureCookieName = "__Secure-portal.session-token"
)

var ErrRevoked = errors.New("session revoked")

// CookieName returns the session cookie name; production cookies carry the
// __Secure- prefix.
func CookieName(production bool) string {
	if production {
		return secureCookieName
	}
	return cookieName
}

// Store signs session claims into a cookie and reads them back.
type Store struct {
	key         []byte
	name        string
	secure      bool
	maxAge      time.Duration
	revocations *Revocations
	now         func() time.Time
}

func NewStore(secret string, maxAge time.Duration, production bool, revocations *Revocations) *Store {
	return &Store{
		key:         []byte(secret),
		name:        CookieName(production),
		secure:      production,
		maxAge:      maxAge,
		revocations: revocations,
		now:         time.Now,
	}
}

// New starts a session that expires after the store's max age.
func (s *Store) New() (*Claims, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &Claims{
		LastActivity: now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}, nil
}

// Load returns the session carried by r, or nil when there is none or it is
// invalid, expired or revoked. Errors are returned only when the revocation
// list cannot be consulted.
func (s *Store) Load(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	claims, err := s.decode(cookie.Value)
	if err != nil {
		return nil, nil
	}

	revoked, err := s.revocations.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return nil, nil
	}
	return claims, nil
}

func (s *Store) decode(value string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// Save writes claims to the response as the session cookie.
func (s *Store) Save(w http.ResponseWriter, claims *Claims) error {
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	maxAge := int(s.maxAge.Seconds())
	if claims.ExpiresAt != nil {
		maxAge = int(claims.ExpiresAt.Sub(s.now()).Seconds())
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   max(maxAge, 1),
	})
	return nil
}

// Clear deletes the session cookie.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Revoke invalidates claims server-side until they would have expired.
func (s *Store) Revoke(ctx context.Context, claims *Claims) error {
	expiresAt := s.now().Add(s.maxAge)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return s.revocations.Revoke(ctx, claims.ID, expiresAt)
}
