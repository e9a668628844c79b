package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var eduChainID = big.NewInt(41923)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, EnvKeystorePassword, EnvKeystorePasswordFile} {
		t.Setenv(key, "")
	}
}

func swapTx(chainID *big.Int) *types.Transaction {
	router := common.HexToAddress("0x0000000000000000000000000000000000000001")
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Gas:       180_000,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(3_000_000_000),
		To:        &router,
		Value:     big.NewInt(0),
	})
}

func TestEnvKeySignsEDUChainSwap(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	s, err := NewLocalSignerFromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.KeySource() != KeySourceEnv {
		t.Fatalf("expected env key source, got %q", s.KeySource())
	}
	signed, err := s.SignTx(eduChainID, swapTx(eduChainID))
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(eduChainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("signed by %s, expected %s", from.Hex(), s.Address().Hex())
	}
}

func TestSignerRefusesChainsOutsideEDUFlows(t *testing.T) {
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	mainnet := big.NewInt(1)
	_, err = s.SignTx(mainnet, swapTx(mainnet))
	if err == nil {
		t.Fatal("expected ethereum mainnet to be refused")
	}
	if !strings.Contains(err.Error(), "EDU Chain (41923)") {
		t.Fatalf("expected supported chain hint, got: %v", err)
	}

	for _, id := range []int64{42161, 56} {
		chainID := big.NewInt(id)
		if _, err := s.SignTx(chainID, swapTx(chainID)); err != nil {
			t.Fatalf("expected bridge source chain %d to be signable: %v", id, err)
		}
	}
}

func TestSignerRejectsEmbeddedChainMismatch(t *testing.T) {
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "0x" + testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if _, err := s.SignTx(eduChainID, swapTx(big.NewInt(42161))); err == nil {
		t.Fatal("expected arbitrum tx signed as EDU Chain to be rejected")
	}
}

func TestKeyFileSource(t *testing.T) {
	clearKeyEnv(t)
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte(testPrivateKey+"\n"), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyFile)
	t.Setenv(EnvPrivateKey, "ffff")

	s, err := NewLocalSignerFromEnv(KeySourceFile)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.KeySource() != KeySourceFile {
		t.Fatalf("expected file key source, got %q", s.KeySource())
	}
}

func TestAutoSourceFindsDefaultEdufiKey(t *testing.T) {
	clearKeyEnv(t)
	cfgDir := t.TempDir()
	keyDir := filepath.Join(cfgDir, "edufi")
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, "key.hex"), []byte(testPrivateKey), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", cfgDir)

	s, err := NewLocalSignerFromEnv(KeySourceAuto)
	if err != nil {
		t.Fatalf("expected auto key-source to use default key path: %v", err)
	}
	if s.KeySource() != KeySourceFile {
		t.Fatalf("expected default key to load as file source, got %q", s.KeySource())
	}
}

func TestOverrideWinsOverFileSource(t *testing.T) {
	t.Setenv(EnvPrivateKeyFile, "/tmp/does-not-exist")
	s, err := NewLocalSignerFromInputs(KeySourceFile, testPrivateKey)
	if err != nil {
		t.Fatalf("expected private key override to win over file key-source: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestUnknownKeySource(t *testing.T) {
	if _, err := NewLocalSignerFromInputs("ledger", ""); err == nil {
		t.Fatal("expected unsupported key source error")
	}
}

func TestKeystoreNeedsPassword(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvKeystorePath, filepath.Join(t.TempDir(), "keystore.json"))
	_, err := NewLocalSignerFromEnv(KeySourceKeystore)
	if err == nil || !strings.Contains(err.Error(), EnvKeystorePassword) {
		t.Fatalf("expected keystore password hint, got: %v", err)
	}
}

func TestDefaultPrivateKeyPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/edufi-config-home")
	if got, want := defaultPrivateKeyPath(), "/tmp/edufi-config-home/edufi/key.hex"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMissingKeyErrorNamesEDUChainSetup(t *testing.T) {
	clearKeyEnv(t)
	_, err := NewLocalSignerFromInputs(KeySourceAuto, "")
	if err == nil {
		t.Fatal("expected missing key error")
	}
	msg := err.Error()
	for _, want := range []string{defaultPrivateKeyHintPath, EnvPrivateKey, "EDU Chain"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected missing key message to include %q, got: %s", want, msg)
		}
	}
}

func TestAddressURLPointsAtBlockscout(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	want := "https://educhain.blockscout.com/address/" + addr.Hex()
	if got := AddressURL(addr); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
