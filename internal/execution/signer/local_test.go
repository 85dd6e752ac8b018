package signer

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, EnvKeystorePassword, EnvKeystorePasswordFile} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeKeyFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
}

func TestSignerFromEnvSignsTransactions(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	s, err := NewLocalSignerFromInputs(KeySourceEnv, "")
	if err != nil {
		t.Fatalf("NewLocalSignerFromInputs failed: %v", err)
	}
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(42161),
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       21_000,
		GasFeeCap: big.NewInt(2),
		GasTipCap: big.NewInt(1),
	})
	signed, err := s.SignTx(big.NewInt(42161), tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(42161)), signed)
	if err != nil || from != s.Address() {
		t.Fatalf("recovered sender %s, want %s (%v)", from.Hex(), s.Address().Hex(), err)
	}
}

func TestSignerSourceRestrictsInputs(t *testing.T) {
	clearKeyEnv(t)
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	writeKeyFile(t, keyFile)
	t.Setenv(EnvPrivateKeyFile, keyFile)

	if _, err := NewLocalSignerFromInputs(KeySourceFile, ""); err != nil {
		t.Fatalf("file source should load %s: %v", keyFile, err)
	}
	_, err := NewLocalSignerFromInputs(KeySourceEnv, "")
	if !errors.Is(err, ErrNoKey) {
		t.Fatalf("env source must ignore the key file, got %v", err)
	}
}

func TestSignerAutoUsesDefaultKeyFile(t *testing.T) {
	clearKeyEnv(t)
	cfgDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgDir)
	writeKeyFile(t, filepath.Join(cfgDir, "fusion", "key.hex"))

	if got := defaultKeyPath(); got != filepath.Join(cfgDir, "fusion", "key.hex") {
		t.Fatalf("unexpected default key path %q", got)
	}
	if _, err := NewLocalSignerFromInputs(KeySourceAuto, ""); err != nil {
		t.Fatalf("auto source should find the default key file: %v", err)
	}
}

func TestSignerOverrideWins(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKeyFile, "/does/not/exist")
	s, err := NewLocalSignerFromInputs(KeySourceFile, "0x"+testPrivateKey)
	if err != nil {
		t.Fatalf("override should win over the file source: %v", err)
	}
	plain, _ := NewLocalSignerFromHex(testPrivateKey)
	if s.Address() != plain.Address() {
		t.Fatalf("0x prefix changed the address: %s vs %s", s.Address().Hex(), plain.Address().Hex())
	}
}

func TestSignerMissingKeyHint(t *testing.T) {
	clearKeyEnv(t)
	_, err := NewLocalSignerFromInputs(KeySourceAuto, "")
	if !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
	for _, want := range []string{keyHintPath, "--private-key", EnvPrivateKey} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %q", want, err.Error())
		}
	}
}

func TestKeystoreNeedsPassword(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvKeystorePath, filepath.Join(t.TempDir(), "ks.json"))
	if _, err := NewLocalSignerFromInputs(KeySourceKeystore, ""); err == nil || !strings.Contains(err.Error(), "password") {
		t.Fatalf("expected password error, got %v", err)
	}
}

func TestParseKeySource(t *testing.T) {
	for in, want := range map[string]KeySource{"": KeySourceAuto, "ENV": KeySourceEnv, " keystore ": KeySourceKeystore} {
		got, err := ParseKeySource(in)
		if err != nil || got != want {
			t.Fatalf("ParseKeySource(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKeySource("ledger"); err == nil {
		t.Fatal("expected error for unknown source")
	}
	if _, err := NewLocalSignerFromHex("zz"); err == nil {
		t.Fatal("expected invalid hex key error")
	}
}
