package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
)

const (
	defaultTokenTTL = 30 * 24 * time.Hour
	tokenIssuer     = "chunkfeed-auth"
	tokenAudience   = "chunkfeed-api"
)

var (
	errMissingSigningSecret = errors.New("credentials: signing secret must be provided")
	errMissingSubject       = errors.New("credentials: user identifier must be provided")
)

// TokenClaims is the identity payload embedded in issued session tokens.
type TokenClaims struct {
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

// UserID returns the subject the token was issued for.
func (c TokenClaims) UserID() string {
	return c.Subject
}

// TokenIssuerConfig configures session token issuance. The signing secret is
// process-wide configuration, never per-user.
type TokenIssuerConfig struct {
	SigningSecret []byte
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and verifies signed, time-limited session tokens.
type TokenIssuer struct {
	signingSecret []byte
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		tokenTTL:      ttl,
		clock:         clock,
	}
}

// IssueToken produces a signed HS256 token embedding the user id and handle
// with an absolute expiry.
func (i *TokenIssuer) IssueToken(userID, handle string) (string, error) {
	if len(i.signingSecret) == 0 {
		return "", errMissingSigningSecret
	}
	if strings.TrimSpace(userID) == "" {
		return "", errMissingSubject
	}

	now := i.clock().UTC()
	claims := TokenClaims{
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.signingSecret)
}

// VerifyToken fails with an Unauthorized fault when the signature is invalid,
// the token expired, or the payload is malformed; otherwise it returns the
// embedded identity claims.
func (i *TokenIssuer) VerifyToken(tokenString string) (TokenClaims, error) {
	const operation = "credentials.verify_token"

	if len(i.signingSecret) == 0 {
		return TokenClaims{}, faults.Unauthorized(operation, errMissingSigningSecret)
	}
	trimmed := strings.TrimSpace(tokenString)
	if trimmed == "" {
		return TokenClaims{}, faults.Unauthorized(operation, errors.New("empty token"))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(
		trimmed,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return TokenClaims{}, faults.Unauthorized(operation, err)
	}
	if parsed == nil || !parsed.Valid {
		return TokenClaims{}, faults.Unauthorized(operation, errors.New("invalid token"))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return TokenClaims{}, faults.Unauthorized(operation, errMissingSubject)
	}
	return *claims, nil
}
