package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	bearerPrefix          = "Bearer "
	accessTokenQueryParam = "access_token"
)

var (
	// ErrUnauthenticated indicates the request carries no usable identity.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrExpiredToken indicates an access token past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")

	errMissingTokenValidator = errors.New("auth: token validator required")
	errInvalidDefaultUser    = errors.New("auth: default user id must be positive")
)

// TokenValidator extracts the user id from an access token.
type TokenValidator interface {
	ValidateToken(token string) (int64, error)
}

// IdentityProvider answers "who is the current user" for a request.
type IdentityProvider interface {
	CurrentUser(r *http.Request) (int64, error)
}

// BearerIdentity reads an access token from the Authorization header, then the
// access_token query parameter used by event streams, then the session cookie.
type BearerIdentity struct {
	validator  TokenValidator
	cookieName string
}

// NewBearerIdentity constructs a BearerIdentity. An empty cookie name disables the cookie fallback.
func NewBearerIdentity(validator TokenValidator, cookieName string) (*BearerIdentity, error) {
	if validator == nil {
		return nil, errMissingTokenValidator
	}
	return &BearerIdentity{validator: validator, cookieName: strings.TrimSpace(cookieName)}, nil
}

// CurrentUser validates the request token. Failures wrap ErrUnauthenticated, and
// expired tokens additionally match ErrExpiredToken.
func (b *BearerIdentity) CurrentUser(r *http.Request) (int64, error) {
	token := b.extractToken(r)
	if token == "" {
		return 0, ErrUnauthenticated
	}
	userID, err := b.validator.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrExpiredToken)
		}
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return userID, nil
}

func (b *BearerIdentity) extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	if token := strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam)); token != "" {
		return token
	}
	if b.cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(b.cookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// StaticIdentity substitutes a fixed user for every request. It only replaces the
// source of the identity; authorization still walks every ownership chain.
type StaticIdentity struct {
	userID int64
}

// NewStaticIdentity constructs the development identity for the default user.
func NewStaticIdentity(userID int64) (*StaticIdentity, error) {
	if userID <= 0 {
		return nil, errInvalidDefaultUser
	}
	return &StaticIdentity{userID: userID}, nil
}

// CurrentUser always returns the configured default user.
func (s *StaticIdentity) CurrentUser(*http.Request) (int64, error) {
	return s.userID, nil
}
