// Package credential resolves signing keys from configuration references and
// signs transactions and messages with them.
package credential

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// EnvKeystorePassword holds the password for keystore: references.
const EnvKeystorePassword = "BRIDGE_KEYSTORE_PASSWORD"

// Reference schemes.
const (
	SchemeEnv      = "env"
	SchemeFile     = "file"
	SchemeKeystore = "keystore"
	SchemeMnemonic = "mnemonic"
)

// ErrInvalidMnemonic is returned when a phrase fails the BIP-39 checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// Signer holds one account's private key.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *Signer) Address() common.Address { return s.addr }

// SignTx signs tx for chainID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil {
		return nil, errors.New("chain id required")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// SignMessage produces an EIP-191 personal-message signature with V in {27, 28}.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// VerifyMessage reports whether sig is addr's EIP-191 signature of msg.
func VerifyMessage(addr common.Address, msg, sig []byte) (bool, error) {
	signer, err := RecoverMessage(msg, sig)
	if err != nil {
		return false, err
	}
	return signer == addr, nil
}

// RecoverMessage returns the address that produced an EIP-191 signature.
func RecoverMessage(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Resolve loads the key a reference points at:
//
//	env:VAR               hex private key in an environment variable
//	file:path             hex private key in a file
//	keystore:path         geth keystore JSON, password from BRIDGE_KEYSTORE_PASSWORD
//	mnemonic:path#index   BIP-39 phrase file, account m/44'/60'/0'/0/index
func Resolve(ref string) (*Signer, error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("credential %q: expected scheme:value", redact(ref))
	}
	var (
		key *ecdsa.PrivateKey
		err error
	)
	switch scheme {
	case SchemeEnv:
		val, set := os.LookupEnv(rest)
		if !set || strings.TrimSpace(val) == "" {
			return nil, fmt.Errorf("credential env:%s: variable not set", rest)
		}
		key, err = parseHexKey(val)
	case SchemeFile:
		var raw []byte
		raw, err = os.ReadFile(rest)
		if err == nil {
			key, err = parseHexKey(firstLine(string(raw)))
		}
	case SchemeKeystore:
		key, err = fromKeystore(rest, os.Getenv(EnvKeystorePassword))
	case SchemeMnemonic:
		key, err = fromMnemonicFile(rest)
	default:
		return nil, fmt.Errorf("credential: unknown scheme %q", scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("credential %s:%s: %w", scheme, rest, err)
	}
	return NewSigner(key), nil
}

// Derive returns the BIP-44 Ethereum key m/44'/60'/0'/0/index of a mnemonic.
func Derive(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	k := master
	for _, i := range path {
		if k, err = k.Derive(i); err != nil {
			return nil, fmt.Errorf("derive %d: %w", i, err)
		}
	}
	priv, err := k.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return toECDSA(priv)
}

// NewMnemonic generates a 24-word phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func toECDSA(priv *btcec.PrivateKey) (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(priv.Serialize())
}

func parseHexKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.New("malformed hex private key")
	}
	return key, nil
}

func fromKeystore(path, password string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := keystore.DecryptKey(raw, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return k.PrivateKey, nil
}

// fromMnemonicFile reads path#index. A file with several phrases selects the
// phrase on line index; a single phrase is used for every index.
func fromMnemonicFile(ref string) (*ecdsa.PrivateKey, error) {
	path, idxRaw, hasIdx := strings.Cut(ref, "#")
	var index uint32
	if hasIdx {
		n, err := strconv.ParseUint(idxRaw, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", idxRaw)
		}
		index = uint32(n)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var phrases []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			phrases = append(phrases, line)
		}
	}
	switch {
	case len(phrases) == 0:
		return nil, errors.New("mnemonic file is empty")
	case len(phrases) == 1:
		return Derive(phrases[0], index)
	case int(index) >= len(phrases):
		return nil, fmt.Errorf("index %d out of range, file holds %d phrases", index, len(phrases))
	default:
		return Derive(phrases[index], index)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// redact keeps only a short prefix of a malformed reference, which may be a
// pasted raw key.
func redact(ref string) string {
	if len(ref) <= 6 {
		return "[redacted]"
	}
	return ref[:4] + "...[redacted]"
}
