// Package envelope seals JSON-serializable payloads into opaque tokens using a
// pre-shared symmetric key. Only holders of the key (agent and operator) can
// read or forge a token; the backend stores and forwards tokens verbatim.
package envelope

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	tokenVersion byte = 0x01

	// version | unix seconds
	headerSize = 1 + 8

	// Allowed clock drift for tokens stamped in the future when a TTL is set.
	maxClockSkew = 60 * time.Second
)

// ErrInvalidToken is returned for every decryption failure. Callers must treat
// it as "no value".
var ErrInvalidToken = errors.New("invalid envelope token")

var encoding = base64.URLEncoding

type Envelope struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

type Option func(*Envelope)

// WithTTL rejects tokens older than ttl. Zero disables the check.
func WithTTL(ttl time.Duration) Option {
	return func(e *Envelope) {
		e.ttl = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Envelope) {
		e.now = now
	}
}

// GenerateKey returns a new random key in the textual form accepted by New.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return encoding.EncodeToString(key), nil
}

// New builds an Envelope from a URL-safe base64 encoded 32-byte key.
func New(key string, opts ...Option) (*Envelope, error) {
	raw, err := encoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	if len(raw) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", chacha20poly1305.KeySize, len(raw))
	}

	aead, err := chacha20poly1305.NewX(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	e := &Envelope{
		aead: aead,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Encrypt serializes v to JSON and seals it under a fresh random nonce.
func (e *Envelope) Encrypt(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	buf := make([]byte, headerSize+nonceSize, headerSize+nonceSize+len(plaintext)+e.aead.Overhead())
	buf[0] = tokenVersion
	binary.BigEndian.PutUint64(buf[1:headerSize], uint64(e.now().Unix()))

	nonce := buf[headerSize : headerSize+nonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(buf, nonce, plaintext, buf[:headerSize])
	return encoding.EncodeToString(sealed), nil
}

// Decrypt authenticates token and unmarshals its payload into v. Any failure,
// including a stale token when a TTL is configured, yields ErrInvalidToken.
func (e *Envelope) Decrypt(token string, v any) error {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}

	nonceSize := e.aead.NonceSize()
	if len(raw) < headerSize+nonceSize+e.aead.Overhead() || raw[0] != tokenVersion {
		return ErrInvalidToken
	}

	header := raw[:headerSize]
	nonce := raw[headerSize : headerSize+nonceSize]
	plaintext, err := e.aead.Open(nil, nonce, raw[headerSize+nonceSize:], header)
	if err != nil {
		return ErrInvalidToken
	}

	if e.ttl > 0 {
		issued := time.Unix(int64(binary.BigEndian.Uint64(header[1:])), 0)
		now := e.now()
		if now.Sub(issued) > e.ttl || issued.Sub(now) > maxClockSkew {
			return ErrInvalidToken
		}
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrInvalidToken
	}
	return nil
}
