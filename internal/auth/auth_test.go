package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := CreateHash("corn-beef-42", Params)
	require.NoError(t, err)

	ok, err := ComparePasswordAndHash("corn-beef-42", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePasswordAndHash("wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultParallelismNeverZero(t *testing.T) {
	// argon2.IDKey panics on a parallelism of zero, which the raw
	// NumCPU()/2 would produce on a single-CPU host.
	assert.GreaterOrEqual(t, Params.parallelism, uint8(1))
	assert.GreaterOrEqual(t, defaultParallelism(), uint8(1))
}

func TestComparePasswordRejectsMalformedHash(t *testing.T) {
	_, err := ComparePasswordAndHash("anything", "not-an-argon2-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	userID := uuid.NewString()
	token, err := CreateJWT(userID)
	require.NoError(t, err)

	got, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAuthenticateJWTRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, err := AuthenticateJWT("not.a.jwt")
	assert.Error(t, err)
}
