package keyenc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const testKey = "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := Encrypt(testKey, "test_password_123")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if enc == testKey || strings.Contains(enc, "abcdef1234") {
		t.Fatalf("token leaks plaintext: %s", enc)
	}
	if !IsEncrypted(enc) {
		t.Fatal("expected token to be detected as encrypted")
	}
	got, err := Decrypt(enc, "test_password_123")
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != testKey {
		t.Fatalf("unexpected plaintext %q", got)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	enc, err := Encrypt(testKey, "right")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	_, err = Decrypt(enc, "wrong")
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestEncryptDeterministicSaltStillRandomizesIV(t *testing.T) {
	salt := []byte("0123456789abcdef")
	a, err := encryptWith(testKey, "pw", salt)
	if err != nil {
		t.Fatalf("encryptWith failed: %v", err)
	}
	b, err := encryptWith(testKey, "pw", salt)
	if err != nil {
		t.Fatalf("encryptWith failed: %v", err)
	}
	if a == b {
		t.Fatal("expected different tokens for different IVs")
	}
	raw, err := base64.URLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("outer decode failed: %v", err)
	}
	if string(raw[:SaltSize]) != string(salt) {
		t.Fatal("expected salt prefix")
	}
	inner, err := base64.URLEncoding.DecodeString(string(raw[SaltSize:]))
	if err != nil {
		t.Fatalf("inner token must be base64url text: %v", err)
	}
	if inner[0] != 0x80 {
		t.Fatalf("unexpected fernet version %#x", inner[0])
	}
}

func TestDecryptRejectsTamperedToken(t *testing.T) {
	enc, err := Encrypt(testKey, "pw")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	raw, _ := base64.URLEncoding.DecodeString(enc)
	raw[len(raw)-5] ^= 0x01
	if _, err := Decrypt(base64.URLEncoding.EncodeToString(raw), "pw"); err == nil {
		t.Fatal("expected tampered token to fail")
	}
}

func TestIsEncrypted(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		testKey: false,
		strings.TrimPrefix(testKey, "0x"): false,
		"short": false,
		base64.URLEncoding.EncodeToString([]byte("0123456789abcdefXYZ")): true,
	}
	for in, want := range cases {
		if got := IsEncrypted(in); got != want {
			t.Fatalf("IsEncrypted(%q)=%v want %v", in, got, want)
		}
	}
}

// fernetToken builds a token from the published Fernet layout:
// 0x80 | timestamp | iv | AES-128-CBC(PKCS7) | HMAC-SHA256, base64url encoded.
func fernetToken(t *testing.T, key []byte, plaintext []byte, iv []byte, ts time.Time) []byte {
	t.Helper()
	block, err := aes.NewCipher(key[16:])
	if err != nil {
		t.Fatalf("aes: %v", err)
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	msg := []byte{0x80}
	msg = binary.BigEndian.AppendUint64(msg, uint64(ts.Unix()))
	msg = append(msg, iv...)
	msg = append(msg, ciphertext...)
	mac := hmac.New(sha256.New, key[:16])
	mac.Write(msg)
	msg = mac.Sum(msg)
	return []byte(base64.URLEncoding.EncodeToString(msg))
}

func TestDecryptOpensIndependentlyBuiltTokens(t *testing.T) {
	salt := []byte("fedcba9876543210")
	password := "test_password_123"
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	iv := bytes.Repeat([]byte{0x07}, aes.BlockSize)
	// Tokens written long ago still open: stored keys have no TTL.
	token := fernetToken(t, key, []byte(testKey), iv, time.Unix(1_600_000_000, 0))
	stored := base64.URLEncoding.EncodeToString(append(append([]byte{}, salt...), token...))

	got, err := Decrypt(stored, password)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != testKey {
		t.Fatalf("unexpected plaintext %q", got)
	}
	if _, err := Decrypt(stored, "other"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt for the wrong password, got %v", err)
	}
}
