// Package crypto seals MT5 investor credentials before they touch the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	// KeySize is the required size for AES-256 keys (32 bytes).
	KeySize = 32
	// nonceSize is the GCM nonce length.
	nonceSize = 12
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrNoKeys            = errors.New("vault has no keys loaded")
)

// Vault holds versioned AES-256-GCM keys so stored credentials survive key
// rotation: new writes use the newest key, reads pick the key named in the
// ciphertext prefix.
type Vault struct {
	mu      sync.RWMutex
	keys    map[int]cipher.AEAD
	current int
}

// NewVault creates a Vault with a single key at the given version.
// The key must be base64-encoded 32 bytes.
func NewVault(keyBase64 string, version int) (*Vault, error) {
	v := &Vault{keys: make(map[int]cipher.AEAD)}
	if err := v.AddKey(keyBase64, version); err != nil {
		return nil, err
	}
	return v, nil
}

// AddKey registers a key version. The highest version becomes the write key.
func (v *Vault) AddKey(keyBase64 string, version int) error {
	raw, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return fmt.Errorf("decode key v%d: %w", version, err)
	}
	if len(raw) != KeySize {
		return ErrInvalidKey
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("create GCM: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[version] = gcm
	if version > v.current {
		v.current = version
	}
	return nil
}

// Seal encrypts plaintext with the current key.
// Output format: ENC[vN]:base64(nonce + ciphertext).
func (v *Vault) Seal(plaintext string) (string, error) {
	v.mu.RLock()
	gcm, ok := v.keys[v.current]
	version := v.current
	v.mu.RUnlock()
	if !ok {
		return "", ErrNoKeys
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("ENC[v%d]:%s", version, base64.StdEncoding.EncodeToString(sealed)), nil
}

// Open decrypts a value produced by Seal, selecting the key version from the
// prefix.
func (v *Vault) Open(ciphertext string) (string, error) {
	version, encoded, err := splitCiphertext(ciphertext)
	if err != nil {
		return "", err
	}

	v.mu.RLock()
	gcm, ok := v.keys[version]
	v.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("key version %d not available", version)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Reseal re-encrypts a ciphertext under the current key (rotation helper).
func (v *Vault) Reseal(ciphertext string) (string, error) {
	plaintext, err := v.Open(ciphertext)
	if err != nil {
		return "", fmt.Errorf("open for reseal: %w", err)
	}
	return v.Seal(plaintext)
}

// CurrentVersion returns the version new writes are sealed with.
func (v *Vault) CurrentVersion() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// GenerateKey returns a fresh random base64-encoded AES-256 key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func splitCiphertext(ciphertext string) (int, string, error) {
	if !strings.HasPrefix(ciphertext, "ENC[v") {
		return 0, "", ErrInvalidCiphertext
	}
	sep := strings.Index(ciphertext, "]:")
	if sep == -1 {
		return 0, "", ErrInvalidCiphertext
	}
	var version int
	if _, err := fmt.Sscanf(ciphertext[:sep+2], "ENC[v%d]:", &version); err != nil || version <= 0 {
		return 0, "", ErrInvalidCiphertext
	}
	return version, ciphertext[sep+2:], nil
}
