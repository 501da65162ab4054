// Package auth implements the auth layer (C6): bearer-token extraction,
// HS256 JWT decode/verify, and claims extraction. It follows the
// teacher's auth package shape (core/pkg/auth/middleware.go,
// core/pkg/identity/keyset.go) adapted from Ed25519 key-rotation to a
// single HS256 shared secret, the signing scheme spec.md §4.6/§6 call for.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// bearerPrefix is matched exactly, case-sensitive, including the
// trailing space (7 characters).
const bearerPrefix = "Bearer "

// Claims identifies an authenticated session: subject, tenant, and the
// standard issued-at/expiry timestamps (seconds since epoch). Claims are
// created once at upgrade time and are immutable for the session's
// lifetime.
type Claims struct {
	Subject  string `json:"sub"`
	TenantID string `json:"tenant_id"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// shieldClaims is the jwt.Claims adapter used for signature/expiry
// verification; it embeds jwt.RegisteredClaims so jwt/v5's exp validation
// applies, and carries the tenant binding alongside it, mirroring the
// teacher's HelmClaims shape.
type shieldClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// Config configures token decoding.
type Config struct {
	// Secret is the HS256 shared signing secret.
	Secret string
	// SkipValidation disables signature/expiry verification and instead
	// base64url-decodes the payload segment directly. Dev-only; the
	// startup preflight (config.Validate) refuses to boot with this set.
	SkipValidation bool
}

// Sentinel errors surfaced by ClaimsFromHeaders, matching the trichotomy
// in spec.md §4.6.
var (
	ErrMissingAuthorization     = errors.New("auth: missing Authorization header")
	ErrInvalidAuthorizationForm = errors.New("auth: invalid Authorization header format")
	ErrInvalidToken             = errors.New("auth: invalid token")
)

// ExtractBearerToken requires the exact, case-sensitive "Bearer " prefix
// (7 characters including the space) and returns the remainder.
func ExtractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return header[len(bearerPrefix):], true
}

// DecodeToken verifies and extracts claims from token per cfg. With
// SkipValidation, it base64url-decodes the payload segment without any
// signature or expiry check (dev mode only — see the startup preflight).
func DecodeToken(token string, cfg Config) (Claims, error) {
	if cfg.SkipValidation {
		return decodeUnverified(token)
	}
	return decodeVerified(token, cfg.Secret)
}

func decodeVerified(token, secret string) (Claims, error) {
	claims := &shieldClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	iat := int64(0)
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Unix()
	}
	exp := int64(0)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Unix()
	}

	return Claims{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		IssuedAt: iat,
		Expiry:   exp,
	}, nil
}

func decodeUnverified(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: malformed JWT", ErrInvalidToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var body struct {
		Sub      string `json:"sub"`
		TenantID string `json:"tenant_id"`
		IssuedAt int64  `json:"iat"`
		Expiry   int64  `json:"exp"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Claims{
		Subject:  body.Sub,
		TenantID: body.TenantID,
		IssuedAt: body.IssuedAt,
		Expiry:   body.Expiry,
	}, nil
}

// ClaimsFromHeaders composes ExtractBearerToken and DecodeToken into the
// end-to-end header-to-claims path used at WebSocket upgrade time. There
// is no anonymous fallback: any failure returns a zero Claims and a
// non-nil error.
func ClaimsFromHeaders(authorizationHeader string, cfg Config) (Claims, error) {
	if authorizationHeader == "" {
		return Claims{}, ErrMissingAuthorization
	}
	token, ok := ExtractBearerToken(authorizationHeader)
	if !ok {
		return Claims{}, ErrInvalidAuthorizationForm
	}
	claims, err := DecodeToken(token, cfg)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
