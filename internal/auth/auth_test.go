package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = &HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := CreateHash("correct horse", testParams)
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := ComparePasswordAndHash("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePasswordAndHash("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := CreateHash("correct horse", testParams)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ")
}

func TestDecodeHashRejectsGarbage(t *testing.T) {
	_, _, _, err := DecodeHash("not a hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, _, _, err = DecodeHash("$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, err = ComparePasswordAndHash("x", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner(time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	token, err := s.CreateToken(id, true)
	require.NoError(t, err)

	got, claims, err := s.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.True(t, claims.Guest)
	require.NotNil(t, claims.ExpiresAt)
}

func TestSignerRejectsForeignAndExpiredTokens(t *testing.T) {
	s, err := NewSigner(time.Minute)
	require.NoError(t, err)
	other, err := NewSigner(time.Minute)
	require.NoError(t, err)

	token, err := other.CreateToken(uuid.New(), false)
	require.NoError(t, err)
	_, _, err = s.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err = s.CreateToken(uuid.New(), false)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = s.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerWithoutExpiry(t *testing.T) {
	s, err := NewSigner(0)
	require.NoError(t, err)
	token, err := s.CreateToken(uuid.New(), false)
	require.NoError(t, err)

	_, claims, err := s.Authenticate(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}
