package credentials

import (
	"strings"
	"testing"
	"time"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
)

var testSigningSecret = []byte("unit-test-signing-secret")

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIssueTokenRoundTrip(t *testing.T) {
	issuedAt := time.Unix(1750000000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSigningSecret,
		Clock:         fixedClock(issuedAt),
	})

	token, err := issuer.IssueToken("user-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := issuer.VerifyToken(token)
	if err != nil {
		t.Fatalf("unexpected verification error: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Handle != "alice" {
		t.Fatalf("unexpected handle %s", claims.Handle)
	}
	expiry := claims.ExpiresAt.Time
	if expiry.Sub(issuedAt) != 30*24*time.Hour {
		t.Fatalf("expected 30 day expiry, got %v", expiry.Sub(issuedAt))
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Unix(1750000000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSigningSecret,
		TokenTTL:      time.Hour,
		Clock:         fixedClock(issuedAt),
	})
	token, err := issuer.IssueToken("user-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	later := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSigningSecret,
		Clock:         fixedClock(issuedAt.Add(2 * time.Hour)),
	})
	_, err = later.VerifyToken(token)
	if err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	if faults.KindOf(err) != faults.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %s", faults.KindOf(err))
	}
}

func TestVerifyTokenRejectsTamperedSignature(t *testing.T) {
	issuedAt := time.Unix(1750000000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSigningSecret,
		Clock:         fixedClock(issuedAt),
	})
	token, err := issuer.IssueToken("user-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("some-other-secret"),
		Clock:         fixedClock(issuedAt),
	})
	if _, err := other.VerifyToken(token); faults.KindOf(err) != faults.KindUnauthorized {
		t.Fatalf("expected unauthorized for foreign signature, got %v", err)
	}
}

func TestVerifyTokenRejectsMalformedInput(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: testSigningSecret})

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "whitespace", token: "   "},
		{name: "garbage", token: "not.a.token"},
		{name: "truncated", token: strings.Repeat("a", 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.VerifyToken(tt.token); faults.KindOf(err) != faults.KindUnauthorized {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: testSigningSecret})
	if _, err := issuer.IssueToken("", "alice"); err == nil {
		t.Fatalf("expected missing subject to be rejected")
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})
	if _, err := issuer.IssueToken("user-1", "alice"); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
}
