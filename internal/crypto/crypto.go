// Package crypto encrypts secrets at rest (saved target passwords) with a
// Fernet key generated on first use and persisted in the settings table.
package crypto

import (
	"fmt"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/billchurch/webssh2-sub007/internal/database"
)

const keySetting = "encryption_key"

func getKey() (*fernet.Key, error) {
	keyStr, err := database.GetSetting(keySetting)
	if err != nil {
		// Generate new key
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		keyStr = k.Encode()
		if err := database.SetSetting(keySetting, keyStr); err != nil {
			return nil, fmt.Errorf("save encryption key: %w", err)
		}
		return &k, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return key, nil
}

func Encrypt(plaintext string) (string, error) {
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}

// Mask renders a secret for display, keeping only the last four characters.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
