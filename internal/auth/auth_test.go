package auth_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/novelbytelabs/ArqonBus/internal/auth"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-shared-secret"

func signToken(t *testing.T, secret, sub, tenant string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":       sub,
		"tenant_id": tenant,
		"iat":       time.Now().Unix(),
		"exp":       exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestExtractBearerToken(t *testing.T) {
	tok, ok := auth.ExtractBearerToken("Bearer abc.def.ghi")
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", tok)

	_, ok = auth.ExtractBearerToken("bearer abc.def.ghi") // wrong case
	require.False(t, ok)

	_, ok = auth.ExtractBearerToken("Basic abc")
	require.False(t, ok)

	_, ok = auth.ExtractBearerToken("")
	require.False(t, ok)
}

func TestDecodeToken_Verified_Success(t *testing.T) {
	tok := signToken(t, testSecret, "user-1", "tenant-a", time.Now().Add(time.Hour))
	claims, err := auth.DecodeToken(tok, auth.Config{Secret: testSecret})
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "tenant-a", claims.TenantID)
	require.NotZero(t, claims.Expiry)
}

func TestDecodeToken_Verified_WrongSecret(t *testing.T) {
	tok := signToken(t, testSecret, "user-1", "tenant-a", time.Now().Add(time.Hour))
	_, err := auth.DecodeToken(tok, auth.Config{Secret: "not-the-secret"})
	require.Error(t, err)
}

func TestDecodeToken_Verified_Expired(t *testing.T) {
	tok := signToken(t, testSecret, "user-1", "tenant-a", time.Now().Add(-time.Hour))
	_, err := auth.DecodeToken(tok, auth.Config{Secret: testSecret})
	require.Error(t, err)
}

func TestDecodeToken_SkipValidation(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"sub": "u1", "tenant_id": "t1", "iat": 1, "exp": 2})
	require.NoError(t, err)
	seg := base64.RawURLEncoding.EncodeToString(payload)
	tok := "header." + seg + ".sig"

	claims, err := auth.DecodeToken(tok, auth.Config{SkipValidation: true})
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "t1", claims.TenantID)
}

func TestClaimsFromHeaders_MissingHeader(t *testing.T) {
	_, err := auth.ClaimsFromHeaders("", auth.Config{Secret: testSecret})
	require.ErrorIs(t, err, auth.ErrMissingAuthorization)
}

func TestClaimsFromHeaders_WrongScheme(t *testing.T) {
	_, err := auth.ClaimsFromHeaders("Basic abc", auth.Config{Secret: testSecret})
	require.ErrorIs(t, err, auth.ErrInvalidAuthorizationForm)
}

func TestClaimsFromHeaders_InvalidToken(t *testing.T) {
	_, err := auth.ClaimsFromHeaders("Bearer not-a-real-jwt", auth.Config{Secret: testSecret})
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestClaimsFromHeaders_Success(t *testing.T) {
	tok := signToken(t, testSecret, "user-9", "tenant-z", time.Now().Add(time.Hour))
	claims, err := auth.ClaimsFromHeaders("Bearer "+tok, auth.Config{Secret: testSecret})
	require.NoError(t, err)
	require.Equal(t, "tenant-z", claims.TenantID)
}
