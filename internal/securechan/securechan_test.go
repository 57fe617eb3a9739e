package securechan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTripSameKey(t *testing.T) {
	var key [32]byte
	copy(key[:], "the-final-key-is-thirty-two-byt")

	payload, err := Seal(key, []byte("hello peer"))
	require.NoError(t, err)

	out, err := Open(key, payload)
	require.NoError(t, err)
	assert.Equal(t, "hello peer", string(out))
}

func TestOpenFailsOnKeyMismatch(t *testing.T) {
	var keyA, keyB [32]byte
	copy(keyA[:], "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	copy(keyB[:], "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	payload, err := Seal(keyA, []byte("hello"))
	require.NoError(t, err)

	_, err = Open(keyB, payload)
	assert.Error(t, err)
}

func TestAttemptReportsOutcomeWithoutError(t *testing.T) {
	var keyA, keyE [32]byte
	copy(keyA[:], "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	copy(keyE[:], "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	payload, err := Seal(keyA, []byte("secret"))
	require.NoError(t, err)

	respOutcome := Attempt(keyA, payload)
	assert.True(t, respOutcome.Success)
	assert.Equal(t, "secret", string(respOutcome.Plaintext))

	eveOutcome := Attempt(keyE, payload)
	assert.False(t, eveOutcome.Success)
	assert.Nil(t, eveOutcome.Plaintext)
}

func TestSealNonceIsNotReused(t *testing.T) {
	var key [32]byte
	copy(key[:], "the-final-key-is-thirty-two-byt")

	a, err := Seal(key, []byte("m"))
	require.NoError(t, err)
	b, err := Seal(key, []byte("m"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
