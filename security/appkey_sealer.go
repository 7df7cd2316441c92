package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-credentials/core"
)

type Option func(*AppKeySealer)

type appKey struct {
	id      string
	version int
	key     []byte
}

// AppKeySealer seals tokens with AES-GCM under an application key. Values
// without the envelope prefix are returned unchanged by Open so rows written
// before sealing was enabled stay readable.
type AppKeySealer struct {
	active   appKey
	previous []appKey
}

func WithKeyID(id string) Option {
	return func(sealer *AppKeySealer) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			sealer.active.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(sealer *AppKeySealer) {
		if version > 0 {
			sealer.active.version = version
		}
	}
}

// WithPreviousKey keeps a retired key available for Open during rotation.
func WithPreviousKey(id string, version int, keyMaterial []byte) Option {
	return func(sealer *AppKeySealer) {
		material := bytes.TrimSpace(keyMaterial)
		if len(material) == 0 {
			return
		}
		sealer.previous = append(sealer.previous, appKey{
			id:      strings.TrimSpace(id),
			version: version,
			key:     normalizeKey(material),
		})
	}
}

func NewAppKeySealer(keyMaterial []byte, opts ...Option) (*AppKeySealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	sealer := &AppKeySealer{
		active: appKey{id: "app-key", version: 1, key: normalizeKey(key)},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(sealer)
	}
	return sealer, nil
}

func NewAppKeySealerFromString(key string, opts ...Option) (*AppKeySealer, error) {
	return NewAppKeySealer([]byte(key), opts...)
}

func (s *AppKeySealer) Seal(_ context.Context, plaintext string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: token sealer is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(s.active.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), []byte(s.active.id))
	return encodeEnvelope(envelope{
		KeyID:      s.active.id,
		Version:    s.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (s *AppKeySealer) Open(_ context.Context, stored string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: token sealer is nil")
	}
	if !IsSealed(stored) {
		return stored, nil
	}
	env, err := decodeEnvelope(stored)
	if err != nil {
		return "", err
	}
	if env.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported algorithm %q", env.Algorithm)
	}
	key, ok := s.keyFor(env.KeyID, env.Version)
	if !ok {
		return "", fmt.Errorf("security: no key for id %q version %d", env.KeyID, env.Version)
	}
	nonce, err := decodeBase64("nonce", env.Nonce)
	if err != nil {
		return "", err
	}
	payload, err := decodeBase64("ciphertext", env.Ciphertext)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key.key)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, []byte(key.id))
	if err != nil {
		return "", fmt.Errorf("security: decrypt token: %w", err)
	}
	return string(plaintext), nil
}

// NeedsReseal reports whether a stored value is unsealed or sealed under a
// key other than the active one.
func (s *AppKeySealer) NeedsReseal(stored string) bool {
	if s == nil || !IsSealed(stored) {
		return true
	}
	meta, err := ParseEnvelopeMetadata(stored)
	if err != nil {
		return true
	}
	return meta.KeyID != s.active.id || meta.Version != s.active.version
}

func (s *AppKeySealer) KeyID() string {
	if s == nil {
		return ""
	}
	return s.active.id
}

func (s *AppKeySealer) Version() int {
	if s == nil {
		return 0
	}
	return s.active.version
}

func (s *AppKeySealer) keyFor(id string, version int) (appKey, bool) {
	candidates := append([]appKey{s.active}, s.previous...)
	for _, candidate := range candidates {
		if candidate.id == id && (version <= 0 || candidate.version == version) {
			return candidate, true
		}
	}
	return appKey{}, false
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.TokenSealer = (*AppKeySealer)(nil)
