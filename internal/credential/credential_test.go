package credential

import (
	"bytes"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known development mnemonic and its first two accounts.
const (
	devMnemonic = "test test test test test test test test test test test junk"
	devKey0     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var (
	devAddr0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	devAddr1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDeriveBIP44(t *testing.T) {
	cases := []struct {
		index uint32
		want  common.Address
	}{
		{0, devAddr0},
		{1, devAddr1},
	}
	for _, tc := range cases {
		key, err := Derive(devMnemonic, tc.index)
		if err != nil {
			t.Fatalf("derive %d: %v", tc.index, err)
		}
		if got := crypto.PubkeyToAddress(key.PublicKey); got != tc.want {
			t.Fatalf("index %d: address %s, want %s", tc.index, got.Hex(), tc.want.Hex())
		}
	}
	key, _ := Derive(devMnemonic, 0)
	if common.Bytes2Hex(crypto.FromECDSA(key)) != devKey0 {
		t.Fatalf("unexpected private key for index 0")
	}
}

func TestDeriveRejectsBadMnemonic(t *testing.T) {
	_, err := Derive("test test test test test test test test test test test notaword", 0)
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestResolveSchemes(t *testing.T) {
	t.Setenv("RELAY_TEST_KEY", "0x"+devKey0)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	key, _ := crypto.HexToECDSA(devKey0)
	acct, err := ks.ImportECDSA(key, "hunter2")
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	t.Setenv(EnvKeystorePassword, "hunter2")

	phrases := writeFile(t, "phrases.txt", "\n"+devMnemonic+"\n"+devMnemonic+"\n")
	single := writeFile(t, "single.txt", devMnemonic+"\n")

	cases := []struct {
		ref  string
		want common.Address
	}{
		{"env:RELAY_TEST_KEY", devAddr0},
		{"file:" + writeFile(t, "key.hex", devKey0+"\n"), devAddr0},
		{"keystore:" + acct.URL.Path, devAddr0},
		{"mnemonic:" + single, devAddr0},
		{"mnemonic:" + single + "#1", devAddr1},
		{"mnemonic:" + phrases + "#1", devAddr1},
	}
	for _, tc := range cases {
		s, err := Resolve(tc.ref)
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.ref, err)
		}
		if s.Address() != tc.want {
			t.Fatalf("resolve %s: address %s, want %s", tc.ref, s.Address().Hex(), tc.want.Hex())
		}
	}
}

func TestResolveErrors(t *testing.T) {
	t.Setenv("RELAY_BAD_KEY", "not-hex")
	t.Setenv(EnvKeystorePassword, "wrong")
	phrases := writeFile(t, "phrases.txt", devMnemonic+"\n"+devMnemonic+"\n")

	for _, ref := range []string{
		"",
		"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"vault:secret/relay",
		"env:RELAY_UNSET_KEY",
		"env:RELAY_BAD_KEY",
		"file:/does/not/exist",
		"mnemonic:" + phrases + "#5",
		"mnemonic:" + phrases + "#x",
		"keystore:" + writeFile(t, "ks.json", "{}"),
	} {
		if _, err := Resolve(ref); err == nil {
			t.Errorf("Resolve(%q) expected error", ref)
		}
	}
}

func TestSignAndVerifyMessage(t *testing.T) {
	key, _ := crypto.HexToECDSA(devKey0)
	s := NewSigner(key)
	challenge := []byte("rTfXqBZRwJvLhMkNpQsUyVaCdEgHiJkL")

	sig, err := s.SignMessage(challenge)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("v = %d", v)
	}
	ok, err := VerifyMessage(devAddr0, challenge, sig)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
	if ok, _ := VerifyMessage(devAddr1, challenge, sig); ok {
		t.Fatalf("signature verified for the wrong address")
	}
	if ok, _ := VerifyMessage(devAddr0, []byte("other"), sig); ok {
		t.Fatalf("signature verified for the wrong message")
	}
	if _, err := VerifyMessage(devAddr0, challenge, sig[:10]); err == nil {
		t.Fatalf("expected error for short signature")
	}
	if !bytes.Equal(sig[:64], mustSign(t, s, challenge)[:64]) {
		t.Fatalf("signing is not deterministic")
	}
}

func mustSign(t *testing.T, s *Signer, msg []byte) []byte {
	t.Helper()
	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestSignTx(t *testing.T) {
	key, _ := crypto.HexToECDSA(devKey0)
	s := NewSigner(key)
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)})

	if _, err := s.SignTx(tx, nil); err == nil {
		t.Fatalf("expected error without chain id")
	}
	signed, err := s.SignTx(tx, big.NewInt(97))
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(97)), signed)
	if err != nil || from != devAddr0 {
		t.Fatalf("sender = %s err=%v", from.Hex(), err)
	}
}

func TestNewMnemonicDerives(t *testing.T) {
	m, err := NewMnemonic()
	if err != nil {
		t.Fatalf("new mnemonic: %v", err)
	}
	if _, err := Derive(m, 3); err != nil {
		t.Fatalf("derive from generated mnemonic: %v", err)
	}
}
