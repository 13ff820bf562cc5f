package Block

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"BundleGen/Codec"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// DefaultDerivationPath is the standard Ethereum account path.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidKey     = errors.New("invalid private key")
	ErrSigningFailure = errors.New("signing failure")
)

// Key is a secp256k1 signing key. Callers must Close it once done; Close
// wipes the secret scalar.
type Key struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

// ParseKey parses a hex encoded 32 byte secret, with or without 0x prefix.
func ParseKey(hexKey string) (*Key, error) {
	b, err := Codec.DecodeHex(hexKey)
	if err != nil {
		return nil, err
	}
	defer clear(b)
	priv, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newKey(priv), nil
}

// KeyFromMnemonic derives the key at path from a BIP-39 mnemonic.
//
// Only the derived key outlives the call. The seed buffer is zeroed before
// returning; the wallet's master key is unexported by hdwallet and is left for
// the collector, so it cannot be wiped here. Strings, including mnemonic,
// cannot be wiped either.
func KeyFromMnemonic(mnemonic, path string) (*Key, error) {
	seed, err := hdwallet.NewSeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create seed from mnemonic: %v", ErrInvalidKey, err)
	}
	defer clear(seed)
	wallet, err := hdwallet.NewFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create wallet: %v", ErrInvalidKey, err)
	}
	derivationPath, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: bad derivation path %q: %v", ErrInvalidKey, path, err)
	}
	account, err := wallet.Derive(derivationPath, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to derive account: %v", ErrInvalidKey, err)
	}
	priv, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get private key: %v", ErrInvalidKey, err)
	}
	return newKey(priv), nil
}

func newKey(priv *ecdsa.PrivateKey) *Key {
	return &Key{priv: priv, address: crypto.PubkeyToAddress(priv.PublicKey)}
}

// WithKey parses hexKey, hands it to fn and wipes it when fn returns.
func WithKey(hexKey string, fn func(*Key) error) error {
	key, err := ParseKey(hexKey)
	if err != nil {
		return err
	}
	defer key.Close()
	return fn(key)
}

// Address returns the account address controlled by the key.
func (k *Key) Address() common.Address {
	return k.address
}

// Close zeroes the secret scalar. The key cannot sign afterwards.
func (k *Key) Close() {
	if k.priv == nil {
		return
	}
	words := k.priv.D.Bits()
	for i := range words {
		words[i] = 0
	}
	k.priv.D.SetInt64(0)
	k.priv = nil
}

// Sign produces a deterministic (RFC 6979) recoverable signature over digest.
// V is the raw recovery bit, 0 or 1.
func (k *Key) Sign(digest common.Hash) (Signature, error) {
	if k.priv == nil {
		return Signature{}, fmt.Errorf("%w: key is closed", ErrInvalidKey)
	}
	sig, err := crypto.Sign(digest[:], k.priv)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}
	var out Signature
	out.R.SetBytes(sig[:32])
	out.S.SetBytes(sig[32:64])
	out.V = sig[64]
	if out.V > 1 {
		return Signature{}, fmt.Errorf("%w: recovery id %d out of range", ErrSigningFailure, out.V)
	}
	signer, err := Recover(digest, out)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}
	if signer != k.address {
		return Signature{}, fmt.Errorf("%w: recovered %s, want %s", ErrSigningFailure, signer, k.address)
	}
	return out, nil
}

// Recover returns the address whose key produced sig over digest.
func Recover(digest common.Hash, sig Signature) (common.Address, error) {
	if !crypto.ValidateSignatureValues(sig.V, sig.R.ToBig(), sig.S.ToBig(), true) {
		return common.Address{}, errors.New("invalid signature values")
	}
	raw := make([]byte, crypto.SignatureLength)
	r, s := sig.R.Bytes32(), sig.S.Bytes32()
	copy(raw[:32], r[:])
	copy(raw[32:64], s[:])
	raw[64] = sig.V
	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
