// Package auth verifies wager grants: short-lived ed25519 JWTs minted by the
// wallet gateway that authorize one bet. The grant's jti is the wager
// evidence, so the replay guard and the token's single-use identity are the
// same value.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"ICHOR_ARENA_GRANT_ISSUER"`
	Audience  string `env:"ICHOR_ARENA_GRANT_AUDIENCE"`
	PublicKey string `env:"ICHOR_ARENA_GRANT_PUBLIC_KEY"`
}

// GrantConfig defines how wager grants are verified.
type GrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// WagerClaims captures a validated wager grant.
type WagerClaims struct {
	Wallet    domain.Identity
	Evidence  string // the grant's jti
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// wagerClaims is the internal claims type used for JWT parsing.
type wagerClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet"`
}

// LoadGrantConfigFromEnv reads wager grant verification configuration.
func LoadGrantConfigFromEnv(now func() time.Time) (GrantConfig, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return GrantConfig{}, fmt.Errorf("parse wager grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return GrantConfig{}, fmt.Errorf("ICHOR_ARENA_GRANT_ISSUER is required")
	}
	if audience == "" {
		return GrantConfig{}, fmt.Errorf("ICHOR_ARENA_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return GrantConfig{}, fmt.Errorf("ICHOR_ARENA_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return GrantConfig{}, fmt.Errorf("decode wager grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return GrantConfig{}, fmt.Errorf("wager grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return GrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// ValidateWagerGrant verifies a wager grant token.
func ValidateWagerGrant(grant string, cfg GrantConfig) (WagerClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return WagerClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "wager grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return WagerClaims{}, errors.New("wager grant verifier is not configured")
	}

	var parsed wagerClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return WagerClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return WagerClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"wager grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return WagerClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"wager grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ID == "" {
		return WagerClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "wager grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return WagerClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "wager grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return WagerClaims{}, apperrors.New(apperrors.CodeGrantExpired, "wager grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return WagerClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "wager grant not active yet")
	}

	wallet, err := domain.ParseIdentity(strings.TrimSpace(parsed.Wallet))
	if err != nil {
		return WagerClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "wager grant wallet is invalid")
	}

	claims := WagerClaims{
		Wallet:    wallet,
		Evidence:  parsed.ID,
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// MintWagerGrant signs a wager grant. The arena itself only verifies grants;
// minting lives here for the gateway and for tests.
func MintWagerGrant(key ed25519.PrivateKey, cfg GrantConfig, wallet domain.Identity, evidence string, ttl time.Duration) (string, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	now := cfg.Now().UTC()
	claims := wagerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ID:        evidence,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Wallet: domain.HexIdentity(wallet),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign wager grant: %w", err)
	}
	return signed, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeGrantInvalid, "wager grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeGrantInvalid, "wager grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeGrantInvalid, "wager grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
