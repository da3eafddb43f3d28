package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// RememberedCredentials represents the stored credentials for "Remember Me"
type RememberedCredentials struct {
	Username  string    `json:"username"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

const rememberMeTTL = 30 * 24 * time.Hour

var ErrRememberTokenNotFound = errors.New("remember me token not found or expired")

// GenerateRememberMeToken generates a secure token for "Remember Me"
func GenerateRememberMeToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func encryptionKey() []byte {
	key := os.Getenv("REMEMBER_ME_ENCRYPTION_KEY")
	if key == "" {
		key = "default-encryption-key-32-bytes-long"
	}
	if len(key) < 32 {
		key = key + "00000000000000000000000000000000"
	}
	return []byte(key[:32])
}

// EncryptCredentials encrypts the credentials before storing in Redis
func EncryptCredentials(credentials RememberedCredentials) (string, error) {
	jsonData, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(encryptionKey())
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, jsonData, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptCredentials decrypts credentials retrieved from Redis
func DecryptCredentials(encrypted string) (*RememberedCredentials, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encryptionKey())
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, errors.New("invalid encrypted credentials")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	jsonData, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	var credentials RememberedCredentials
	if err := json.Unmarshal(jsonData, &credentials); err != nil {
		return nil, err
	}
	return &credentials, nil
}

// StoreRememberMeToken stores encrypted credentials in Redis under the token
func StoreRememberMeToken(ctx context.Context, client *redis.Client, token string, credentials RememberedCredentials) error {
	if client == nil {
		return errors.New("redis is not available")
	}

	credentials.ExpiresAt = time.Now().Add(rememberMeTTL)
	encrypted, err := EncryptCredentials(credentials)
	if err != nil {
		return err
	}

	return client.Set(ctx, "remember_me:"+token, encrypted, rememberMeTTL).Err()
}

// GetRememberedCredentials retrieves and decrypts credentials for a token
func GetRememberedCredentials(ctx context.Context, client *redis.Client, token string) (*RememberedCredentials, error) {
	if client == nil {
		return nil, ErrRememberTokenNotFound
	}

	encrypted, err := client.Get(ctx, "remember_me:"+token).Result()
	if err == redis.Nil {
		return nil, ErrRememberTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	credentials, err := DecryptCredentials(encrypted)
	if err != nil {
		return nil, err
	}
	if time.Now().After(credentials.ExpiresAt) {
		_ = DeleteRememberMeToken(ctx, client, token)
		return nil, ErrRememberTokenNotFound
	}
	return credentials, nil
}

// DeleteRememberMeToken removes a remember-me token from Redis
func DeleteRememberMeToken(ctx context.Context, client *redis.Client, token string) error {
	if client == nil {
		return nil
	}
	return client.Del(ctx, "remember_me:"+token).Err()
}
