package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "FUSION_PRIVATE_KEY"
	EnvPrivateKeyFile       = "FUSION_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "FUSION_KEYSTORE_PATH"
	EnvKeystorePassword     = "FUSION_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "FUSION_KEYSTORE_PASSWORD_FILE"
)

// KeySource restricts where a signing key may come from.
type KeySource string

const (
	KeySourceAuto     KeySource = "auto"
	KeySourceEnv      KeySource = "env"
	KeySourceFile     KeySource = "file"
	KeySourceKeystore KeySource = "keystore"
)

const keyHintPath = "~/.config/fusion/key.hex"

// ErrNoKey is returned when no source yields a key.
var ErrNoKey = errors.New("no signing key configured")

// ParseKeySource accepts the names above, case-insensitively. Empty means auto.
func ParseKeySource(raw string) (KeySource, error) {
	switch src := KeySource(strings.ToLower(strings.TrimSpace(raw))); src {
	case "":
		return KeySourceAuto, nil
	case KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore:
		return src, nil
	default:
		return "", fmt.Errorf("unsupported key source %q (expected auto|env|file|keystore)", raw)
	}
}

// LocalSigner signs with an in-memory secp256k1 key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("signer has no key")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func newLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewLocalSignerFromHex builds a signer from a hex key, with or without 0x,
// typically one decrypted from the vault config file.
func NewLocalSignerFromHex(raw string) (*LocalSigner, error) {
	key, err := parseHexKey(raw)
	if err != nil {
		return nil, err
	}
	return newLocalSigner(key), nil
}

// NewLocalSignerFromInputs resolves a key from the environment, limited to
// source. A non-empty override is used as-is and skips the environment.
func NewLocalSignerFromInputs(source KeySource, override string) (*LocalSigner, error) {
	if strings.TrimSpace(override) != "" {
		return NewLocalSignerFromHex(override)
	}
	if source == "" {
		source = KeySourceAuto
	}
	in := inputsFromEnv()
	if err := in.restrict(source); err != nil {
		return nil, err
	}
	key, err := in.load()
	if err != nil {
		return nil, err
	}
	return newLocalSigner(key), nil
}

// keyInputs are the places a key can come from, in lookup order.
type keyInputs struct {
	hex              string
	file             string
	keystore         string
	keystorePassword string
	passwordFile     string
}

func inputsFromEnv() keyInputs {
	in := keyInputs{
		hex:              strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		file:             strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		keystore:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		keystorePassword: strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		passwordFile:     strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
	if in.file == "" {
		in.file = existingDefaultKeyFile()
	}
	return in
}

func (in *keyInputs) restrict(source KeySource) error {
	switch source {
	case KeySourceAuto:
	case KeySourceEnv:
		*in = keyInputs{hex: in.hex}
	case KeySourceFile:
		*in = keyInputs{file: in.file}
	case KeySourceKeystore:
		in.hex, in.file = "", ""
	default:
		return fmt.Errorf("unsupported key source %q", source)
	}
	return nil
}

func (in keyInputs) load() (*ecdsa.PrivateKey, error) {
	switch {
	case in.hex != "":
		return parseHexKey(in.hex)
	case in.file != "":
		buf, err := os.ReadFile(in.file)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	case in.keystore != "":
		return in.loadKeystore()
	}
	return nil, fmt.Errorf("%w: set private_key in the vault config, pass --private-key, write %s, or set %s, %s or %s",
		ErrNoKey, keyHintPath, EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath)
}

func (in keyInputs) loadKeystore() (*ecdsa.PrivateKey, error) {
	password := in.keystorePassword
	if password == "" && in.passwordFile != "" {
		buf, err := os.ReadFile(in.passwordFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore password file: %w", err)
		}
		password = strings.TrimSpace(string(buf))
	}
	if password == "" {
		return nil, errors.New("keystore password is required")
	}
	blob, err := os.ReadFile(in.keystore)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(blob, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	if len(clean) >= 2 && (clean[:2] == "0x" || clean[:2] == "0X") {
		clean = clean[2:]
	}
	if clean == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// defaultKeyPath is $XDG_CONFIG_HOME/fusion/key.hex, falling back to ~/.config.
func defaultKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fusion", "key.hex")
}

func existingDefaultKeyFile() string {
	path := defaultKeyPath()
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
