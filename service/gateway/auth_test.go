package gateway

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "IMCore/tools/errs"
)

var testSecret = []byte("0123456789abcdef")

func TestAuthRoundTrip(t *testing.T) {
	opts := DefaultAuthOptions(testSecret)
	token, exp, err := Generate(opts, "alice")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	userID, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestAuthWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultAuthOptions(testSecret), "alice")
	require.NoError(t, err)

	_, err = Verify(DefaultAuthOptions([]byte("another-secret!!")), token)
	require.Error(t, err)
	assert.True(t, errs.ErrUnauthorized.Is(err))
}

func TestAuthExpiredToken(t *testing.T) {
	now := time.Now().Add(-time.Hour)
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "alice",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString(testSecret)
	require.NoError(t, err)

	_, err = Verify(DefaultAuthOptions(testSecret), signed)
	require.Error(t, err)
	assert.True(t, errs.ErrUnauthorized.Is(err))
}

func TestAuthMissingSubject(t *testing.T) {
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(testSecret)
	require.NoError(t, err)

	_, err = Verify(DefaultAuthOptions(testSecret), signed)
	require.Error(t, err)
	assert.True(t, errs.ErrUnauthorized.Is(err))
}

func TestAuthEmptyToken(t *testing.T) {
	_, err := Verify(DefaultAuthOptions(testSecret), "")
	require.Error(t, err)
	assert.True(t, errs.ErrInvalidArgument.Is(err))
}

func TestAuthRejectsUnsupportedAlg(t *testing.T) {
	opts := DefaultAuthOptions(testSecret)
	opts.Alg = "RS256"
	_, _, err := Generate(opts, "alice")
	assert.Error(t, err)
}

func TestAuthAlgVariants(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512", "hs256"} {
		opts := DefaultAuthOptions(testSecret)
		opts.Alg = alg
		token, _, err := Generate(opts, "bob")
		require.NoError(t, err, alg)
		userID, err := Verify(opts, token)
		require.NoError(t, err, alg)
		assert.Equal(t, "bob", userID)
	}
}
