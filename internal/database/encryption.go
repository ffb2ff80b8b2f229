package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

const (
	envEnableEncryption = "REDDITSCHED_ENABLE_ENCRYPTION"
	envEncryptionSecret = "REDDITSCHED_ENCRYPTION_SECRET"
)

// encryptor seals free-text columns at rest. A nil gcm means encryption is
// disabled and values pass through unchanged.
type encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor() (*encryptor, error) {
	if !isEncryptionEnabled() {
		return &encryptor{gcm: nil}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool {
	return e != nil && e.gcm != nil
}

// Encrypt returns "enc:" + base64(nonce || ciphertext)
func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	result := append(nonce, sealed...)
	return constants.EncryptedPrefix + base64.StdEncoding.EncodeToString(result), nil
}

// Decrypt reverses Encrypt. Values without the prefix were written while
// encryption was off and are returned as-is.
func (e *encryptor) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, constants.EncryptedPrefix) {
		return value, nil
	}
	if !e.enabled() {
		return "", fmt.Errorf("encrypted value found but %s is not set", envEnableEncryption)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, constants.EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv(envEncryptionSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", envEncryptionSecret)
	}

	if len(secret) < constants.MinSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinSecretLength)
	}

	return pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), models.Iterations, models.KeySize, sha256.New), nil
}

func isEncryptionEnabled() bool {
	return os.Getenv(envEnableEncryption) == "true"
}
