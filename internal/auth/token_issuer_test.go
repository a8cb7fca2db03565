package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesAccessTokens(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "notebook-auth",
		Audience:      "notebook-api",
		TokenTTL:      30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueToken(context.Background(), 123)
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}

	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	parser := jwt.Parser{}
	claims := &jwt.RegisteredClaims{}

	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "notebook-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "notebook-api" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: nil,
		TokenTTL:      30 * time.Minute,
	})
	if err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("another-secret"),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, _, err := issuer.IssueToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	userID, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestTokenIssuerRejectsForeignSecret(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret-one")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	other, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret-two")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, _, err := other.IssueToken(context.Background(), 7)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected signature validation failure")
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issuedAt := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		TokenTTL:      time.Minute,
		Clock: func() time.Time {
			return current
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, _, err := issuer.IssueToken(context.Background(), 5)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	current = issuedAt.Add(2 * time.Minute)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token error")
	}
}

func TestTokenIssuerRejectsNonPositiveUser(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueToken(context.Background(), 0); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}
