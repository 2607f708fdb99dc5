// Package vault encrypts small payloads for storage at rest.
//
// An envelope is JSON {"version":1,"hmac":...,"data":...} where data is the
// base64 of nonce||ciphertext under XChaCha20-Poly1305 and hmac is an
// HMAC-SHA256 over data. Both keys are derived from one session key.
package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is the envelope format version.
const Version = 1

// KeySize is the session key length in bytes.
const KeySize = 32

var (
	// ErrVersion is returned for envelopes written by another format version.
	ErrVersion = errors.New("unsupported envelope version")
	// ErrIntegrity is returned when the envelope MAC or AEAD tag does not verify.
	ErrIntegrity = errors.New("envelope integrity check failed")
)

const (
	encLabel = "klsim vault encryption"
	macLabel = "klsim vault integrity"
)

// Envelope is the serialized form of an encrypted payload.
type Envelope struct {
	Version int    `json:"version"`
	HMAC    string `json:"hmac"`
	Data    string `json:"data"`
}

// Vault encrypts and decrypts envelopes with a session key.
type Vault struct {
	mu     sync.RWMutex
	encKey []byte
	macKey []byte
}

// New returns a Vault keyed by sessionKey, which must be KeySize bytes.
func New(sessionKey []byte) (*Vault, error) {
	v := &Vault{}
	if err := v.setKey(sessionKey); err != nil {
		return nil, err
	}
	return v, nil
}

// NewSession returns a Vault with a fresh random key.
func NewSession() (*Vault, error) {
	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Rotate replaces the session key. Envelopes sealed before the call no longer
// decrypt.
func (v *Vault) Rotate() error {
	key, err := randomKey()
	if err != nil {
		return err
	}
	return v.setKey(key)
}

func (v *Vault) setKey(sessionKey []byte) error {
	if len(sessionKey) != KeySize {
		return fmt.Errorf("invalid session key length %d", len(sessionKey))
	}
	encKey, err := derive(sessionKey, encLabel, chacha20poly1305.KeySize)
	if err != nil {
		return err
	}
	macKey, err := derive(sessionKey, macLabel, sha256.Size)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.encKey = encKey
	v.macKey = macKey
	v.mu.Unlock()
	return nil
}

// Encrypt seals plaintext into a JSON envelope.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	v.mu.RLock()
	encKey, macKey := v.encKey, v.macKey
	v.mu.RUnlock()

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	data := base64.StdEncoding.EncodeToString(sealed)

	env := Envelope{
		Version: Version,
		HMAC:    base64.StdEncoding.EncodeToString(sign(macKey, data)),
		Data:    data,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return out, nil
}

// Decrypt opens an envelope. It reports false for malformed, tampered or
// version-mismatched input.
func (v *Vault) Decrypt(envelope []byte) ([]byte, bool) {
	plaintext, err := v.Open(envelope)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

// Open is Decrypt with the failure reason.
func (v *Vault) Open(envelope []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(envelope, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}

	v.mu.RLock()
	encKey, macKey := v.encKey, v.macKey
	v.mu.RUnlock()

	mac, err := base64.StdEncoding.DecodeString(env.HMAC)
	if err != nil {
		return nil, ErrIntegrity
	}
	if !hmac.Equal(mac, sign(macKey, env.Data)) {
		return nil, ErrIntegrity
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, ErrIntegrity
	}
	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrIntegrity
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// LoadOrCreateKey reads a hex session key from path, creating it with mode
// 0600 when missing.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil || len(key) != KeySize {
			return nil, fmt.Errorf("invalid key file %s", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

func randomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

func derive(secret []byte, label string, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

func sign(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
