package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentwise-payments/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "rentwise-identity"}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintAccessToken(testJWT, now, 30*time.Minute, "user-1")
	require.NoError(t, err)

	claims, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, testJWT.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), time.Minute, "user-1")
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	token, err := MintAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, time.Now(), time.Minute, "user-1")
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	token, err := MintAccessToken(config.JWTConfig{Secret: "other", Issuer: testJWT.Issuer}, time.Now(), time.Minute, "user-1")
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)
}

func TestParseAccessTokenRequiresUserID(t *testing.T) {
	now := time.Now()
	claims := AccessTokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    testJWT.Issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{Issuer: "x"}, time.Now(), time.Minute, "u")
	require.Error(t, err)
	_, err = MintAccessToken(testJWT, time.Now(), 0, "u")
	require.Error(t, err)
	_, err = MintAccessToken(testJWT, time.Now(), time.Minute, " ")
	require.Error(t, err)
}

func TestParseAccessTokenFallsBackToSubject(t *testing.T) {
	now := time.Now()
	claims := AccessTokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    testJWT.Issuer,
		Subject:   "partner-9",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)

	parsed, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, "partner-9", parsed.UserID)
}

func TestParseAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	claims := AccessTokenClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    testJWT.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)
}
