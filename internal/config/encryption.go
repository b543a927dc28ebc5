package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeEncryptionKey accepts hex or base64 (padded or raw) AES keys.
func DecodeEncryptionKey(raw string) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	if b, err := hex.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, nil
	}
	return nil, fmt.Errorf("key must be hex or base64 encoded 16/24/32-byte value")
}

// DecodeEncryptionKeysCSV parses comma-separated encryption keys.
func DecodeEncryptionKeysCSV(raw string) ([][]byte, error) {
	parts := strings.Split(raw, ",")
	result := make([][]byte, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := DecodeEncryptionKey(part)
		if err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	return result, nil
}

// EncryptionKeys returns the primary key followed by the legacy decryption
// keys. Returns nil when encryption at rest is not configured.
func (c *Config) EncryptionKeys() ([][]byte, error) {
	if c == nil || c.EncryptionKey == "" || c.EncryptionDBDisabled {
		return nil, nil
	}
	primary, err := DecodeEncryptionKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	legacy, err := DecodeEncryptionKeysCSV(c.EncryptionDecryptionKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid decryption key list: %w", err)
	}
	return append([][]byte{primary}, legacy...), nil
}

func validAESKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}
