package auth

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

func testKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func testConfig(pub ed25519.PublicKey, now time.Time) GrantConfig {
	return GrantConfig{
		Issuer:   "wallet-gateway",
		Audience: "arena",
		Key:      pub,
		Now:      func() time.Time { return now },
	}
}

func wallet(name string) domain.Identity {
	var id domain.Identity
	copy(id[:], name)
	return id
}

func TestValidateWagerGrant_RoundTrip(t *testing.T) {
	pub, priv := testKeys(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(pub, now)

	grant, err := MintWagerGrant(priv, cfg, wallet("bettor"), "sig-1", time.Minute)
	if err != nil {
		t.Fatalf("MintWagerGrant: %v", err)
	}

	claims, err := ValidateWagerGrant(grant, cfg)
	if err != nil {
		t.Fatalf("ValidateWagerGrant: %v", err)
	}
	if claims.Wallet != wallet("bettor") {
		t.Fatalf("wallet = %s, want bettor", domain.HexIdentity(claims.Wallet))
	}
	if claims.Evidence != "sig-1" {
		t.Fatalf("evidence = %s, want sig-1", claims.Evidence)
	}
}

func TestValidateWagerGrant_Expired(t *testing.T) {
	pub, priv := testKeys(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(pub, now)

	grant, err := MintWagerGrant(priv, cfg, wallet("bettor"), "sig-1", time.Minute)
	if err != nil {
		t.Fatalf("MintWagerGrant: %v", err)
	}

	late := cfg
	late.Now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := ValidateWagerGrant(grant, late); !apperrors.IsCode(err, apperrors.CodeGrantExpired) {
		t.Fatalf("err = %v, want GRANT_EXPIRED", err)
	}
}

func TestValidateWagerGrant_WrongKey(t *testing.T) {
	pub, _ := testKeys(t)
	_, otherPriv := testKeys(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(pub, now)

	grant, err := MintWagerGrant(otherPriv, cfg, wallet("bettor"), "sig-1", time.Minute)
	if err != nil {
		t.Fatalf("MintWagerGrant: %v", err)
	}
	if _, err := ValidateWagerGrant(grant, cfg); !apperrors.IsCode(err, apperrors.CodeGrantInvalid) {
		t.Fatalf("err = %v, want GRANT_INVALID", err)
	}
}

func TestValidateWagerGrant_IssuerAudienceMismatch(t *testing.T) {
	pub, priv := testKeys(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(pub, now)

	tests := []struct {
		name   string
		mutate func(GrantConfig) GrantConfig
	}{
		{"issuer", func(c GrantConfig) GrantConfig { c.Issuer = "someone-else"; return c }},
		{"audience", func(c GrantConfig) GrantConfig { c.Audience = "other-service"; return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := MintWagerGrant(priv, tt.mutate(cfg), wallet("bettor"), "sig-1", time.Minute)
			if err != nil {
				t.Fatalf("MintWagerGrant: %v", err)
			}
			if _, err := ValidateWagerGrant(grant, cfg); !apperrors.IsCode(err, apperrors.CodeGrantInvalid) {
				t.Fatalf("err = %v, want GRANT_INVALID", err)
			}
		})
	}
}

func TestValidateWagerGrant_Garbage(t *testing.T) {
	pub, _ := testKeys(t)
	cfg := testConfig(pub, time.Now())

	for _, grant := range []string{"", "  ", "not.a.jwt"} {
		if _, err := ValidateWagerGrant(grant, cfg); !apperrors.IsCode(err, apperrors.CodeGrantInvalid) {
			t.Fatalf("grant %q err = %v, want GRANT_INVALID", grant, err)
		}
	}
}
