package envelope

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Command string            `json:"command"`
	Labels  map[string]string `json:"labels,omitempty"`
}

func newTestEnvelope(t *testing.T, opts ...Option) *Envelope {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	e, err := New(key, opts...)
	require.NoError(t, err)
	return e
}

func TestRoundTrip(t *testing.T) {
	e := newTestEnvelope(t)

	in := payload{Command: "whoami", Labels: map[string]string{"b": "2", "a": "1"}}
	token, err := e.Encrypt(in)
	require.NoError(t, err)
	assert.NotContains(t, token, "whoami")

	var out payload
	require.NoError(t, e.Decrypt(token, &out))
	assert.Equal(t, in, out)
}

func TestRoundTripScalar(t *testing.T) {
	e := newTestEnvelope(t)

	token, err := e.Encrypt("uname -a")
	require.NoError(t, err)

	var out string
	require.NoError(t, e.Decrypt(token, &out))
	assert.Equal(t, "uname -a", out)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	e := newTestEnvelope(t)

	t1, err := e.Encrypt(payload{Command: "id"})
	require.NoError(t, err)
	t2, err := e.Encrypt(payload{Command: "id"})
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
}

func TestDecryptTamperedToken(t *testing.T) {
	e := newTestEnvelope(t)

	token, err := e.Encrypt(payload{Command: "whoami"})
	require.NoError(t, err)
	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)

	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		var out payload
		err := e.Decrypt(base64.URLEncoding.EncodeToString(tampered), &out)
		assert.ErrorIs(t, err, ErrInvalidToken, "byte %d", i)
		assert.Empty(t, out.Command)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	sender := newTestEnvelope(t)
	receiver := newTestEnvelope(t)

	token, err := sender.Encrypt(payload{Command: "whoami"})
	require.NoError(t, err)

	var out payload
	assert.ErrorIs(t, receiver.Decrypt(token, &out), ErrInvalidToken)
}

func TestDecryptGarbage(t *testing.T) {
	e := newTestEnvelope(t)

	inputs := []string{
		"",
		"not base64 at all!",
		base64.URLEncoding.EncodeToString([]byte{0x01, 0x02}),
		strings.Repeat("A", 200),
	}
	for _, in := range inputs {
		var out payload
		assert.ErrorIs(t, e.Decrypt(in, &out), ErrInvalidToken, "input %q", in)
	}
}

func TestDecryptTypeMismatch(t *testing.T) {
	e := newTestEnvelope(t)

	token, err := e.Encrypt([]int{1, 2, 3})
	require.NoError(t, err)

	var out payload
	assert.ErrorIs(t, e.Decrypt(token, &out), ErrInvalidToken)
}

func TestTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	key, err := GenerateKey()
	require.NoError(t, err)
	e, err := New(key, WithTTL(time.Minute), WithClock(clock))
	require.NoError(t, err)

	token, err := e.Encrypt(payload{Command: "id"})
	require.NoError(t, err)

	var out payload
	now = now.Add(30 * time.Second)
	require.NoError(t, e.Decrypt(token, &out))

	now = now.Add(time.Minute)
	assert.ErrorIs(t, e.Decrypt(token, &out), ErrInvalidToken)

	// Tokens without a TTL never expire.
	noTTL, err := New(key, WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, noTTL.Decrypt(token, &out))
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("%%%")
	assert.Error(t, err)

	_, err = New(base64.URLEncoding.EncodeToString([]byte("too short")))
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	raw, err := base64.URLEncoding.DecodeString(k1)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
