// Package crypto protects datasource credentials that rest in config
// files. Values are sealed with AES-256-GCM and written in the form
// ENC[base64], so a config file can carry a password without exposing
// it to anyone who lacks the key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned when a sealed value cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

const (
	encPrefix = "ENC["
	encSuffix = "]"
)

// CredentialEncryptor seals and opens credential values with
// authenticated encryption.
type CredentialEncryptor struct {
	gcm cipher.AEAD
}

// NewCredentialEncryptor creates an encryptor from a key string. A
// base64 string decoding to exactly 32 bytes (openssl rand -base64 32)
// is used directly; anything else is treated as a passphrase and hashed
// to 32 bytes with SHA-256.
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{gcm: gcm}, nil
}

func deriveKey(keyInput string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(keyInput)
	if err == nil && len(decoded) == 32 {
		return decoded
	}
	hash := sha256.Sum256([]byte(keyInput))
	return hash[:]
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext || tag).
// Empty strings pass through unencrypted.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag after the nonce.
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce || ciphertext || tag) and returns the
// plaintext. Empty strings pass through.
func (e *CredentialEncryptor) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether a config value carries the ENC[...]
// wrapper.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix) && strings.HasSuffix(value, encSuffix)
}

// EncryptValue seals plaintext into the ENC[...] form used in config
// files.
func (e *CredentialEncryptor) EncryptValue(plaintext string) (string, error) {
	sealed, err := e.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return encPrefix + sealed + encSuffix, nil
}

// ResolveValue returns a config value ready for use: ENC[...] values
// are opened, everything else passes through unchanged.
func (e *CredentialEncryptor) ResolveValue(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	sealed := strings.TrimSuffix(strings.TrimPrefix(value, encPrefix), encSuffix)
	return e.Decrypt(sealed)
}
