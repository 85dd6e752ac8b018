// Package keyenc encrypts vault private keys with a password.
//
// A token is base64url(salt || fernet), where the key for the inner Fernet token
// is PBKDF2-HMAC-SHA256(password, salt), so any standard Fernet implementation can
// read the inner token.
package keyenc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize   = 16
	Iterations = 100000
	KeySize    = 32
)

// noExpiry disables the token age check; stored keys never expire.
const noExpiry = -1

var (
	ErrDecrypt = errors.New("failed to decrypt private key")

	hexKeyPattern = regexp.MustCompile(`^(0x|0X)?[0-9a-fA-F]{64}$`)
)

// Info describes the scheme for `config show`.
type Info struct {
	Method        string `json:"method"`
	KeyDerivation string `json:"key_derivation"`
	Iterations    int    `json:"iterations"`
	SaltLength    int    `json:"salt_length"`
	Format        string `json:"format"`
}

func Describe() Info {
	return Info{
		Method:        "Fernet (AES-128-CBC)",
		KeyDerivation: "PBKDF2-HMAC-SHA256",
		Iterations:    Iterations,
		SaltLength:    SaltSize,
		Format:        "base64url with salt prepended",
	}
}

// deriveKey stretches password into a Fernet key: signing half first,
// encryption half second.
func deriveKey(password string, salt []byte) *fernet.Key {
	var k fernet.Key
	copy(k[:], pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New))
	return &k
}

// Encrypt seals plaintext under password with a fresh random salt.
func Encrypt(plaintext, password string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encryptWith(plaintext, password, salt)
}

func encryptWith(plaintext, password string, salt []byte) (string, error) {
	if len(salt) != SaltSize {
		return "", fmt.Errorf("salt must be %d bytes", SaltSize)
	}
	token, err := fernet.EncryptAndSign([]byte(plaintext), deriveKey(password, salt))
	if err != nil {
		return "", fmt.Errorf("fernet encrypt: %w", err)
	}
	combined := make([]byte, 0, len(salt)+len(token))
	combined = append(combined, salt...)
	combined = append(combined, token...)
	return base64.URLEncoding.EncodeToString(combined), nil
}

// Decrypt opens a token produced by Encrypt. A wrong password yields ErrDecrypt.
func Decrypt(encrypted, password string) (string, error) {
	combined, err := decodeBase64URL(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(combined) <= SaltSize {
		return "", fmt.Errorf("%w: token too short", ErrDecrypt)
	}
	salt, token := combined[:SaltSize], combined[SaltSize:]
	plain := fernet.VerifyAndDecrypt(token, noExpiry, []*fernet.Key{deriveKey(password, salt)})
	if plain == nil {
		return "", fmt.Errorf("%w: invalid token or password", ErrDecrypt)
	}
	return string(plain), nil
}

// IsEncrypted reports whether s looks like an Encrypt token rather than a raw key.
func IsEncrypted(s string) bool {
	if s == "" || hexKeyPattern.MatchString(s) {
		return false
	}
	decoded, err := decodeBase64URL(s)
	if err != nil {
		return false
	}
	return len(decoded) > SaltSize
}

func decodeBase64URL(s string) ([]byte, error) {
	if out, err := base64.URLEncoding.DecodeString(s); err == nil {
		return out, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
