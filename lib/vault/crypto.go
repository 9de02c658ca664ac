package vault

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/gtank/cryptopasta"
)

const encPrefix = "ENC("

// key loads the AES-256 key, generating and persisting one on first
// use.
func (v *Vault) key() (*[32]byte, error) {
	raw, err := os.ReadFile(v.KeyPath)
	if err == nil {
		if len(raw) != 32 {
			return nil, fmt.Errorf("vault: key at %s has %d bytes, want 32", v.KeyPath, len(raw))
		}
		key := new([32]byte)
		copy(key[:], raw)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key := cryptopasta.NewEncryptionKey()
	err = os.WriteFile(v.KeyPath, key[:], 0o600)
	if err != nil {
		return nil, fmt.Errorf("vault: persist key: %w", err)
	}
	return key, nil
}

// Encrypt wraps a plaintext password as "ENC(base64 ciphertext)".
func (v *Vault) Encrypt(plain string) (string, error) {
	key, err := v.key()
	if err != nil {
		return "", err
	}
	ciphertext, err := cryptopasta.Encrypt([]byte(plain), key)
	if err != nil {
		return "", err
	}
	return encPrefix + base64.StdEncoding.EncodeToString(ciphertext) + ")", nil
}

// maybeDecrypt decrypts ENC(...) values and passes plaintext through,
// so hand-written configs with bare passwords keep working.
func (v *Vault) maybeDecrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encPrefix) || !strings.HasSuffix(value, ")") {
		return value, nil
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(value, encPrefix), ")")
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("bad ENC payload: %w", err)
	}
	key, err := v.key()
	if err != nil {
		return "", err
	}
	plain, err := cryptopasta.Decrypt(ciphertext, key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
