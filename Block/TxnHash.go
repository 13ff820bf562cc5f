package Block

import (
	"errors"
	"fmt"

	"BundleGen/Codec"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// ErrAlreadySigned is returned when an unsigned transaction is used after it
// has been consumed by Sign.
var ErrAlreadySigned = errors.New("transaction already signed")

// MarshalBinary returns the type tag followed by the encoded unsigned fields.
func (tx *UnsignedTx) MarshalBinary() ([]byte, error) {
	if tx.state.Load() == stateSigned {
		return nil, ErrAlreadySigned
	}
	return tx.f.encode()
}

// SigningHash returns the SHA3-256 digest of the encoded unsigned transaction.
// This is the value the sender signs.
func (tx *UnsignedTx) SigningHash() (common.Hash, error) {
	if tx.state.Load() == stateSigned {
		return common.Hash{}, ErrAlreadySigned
	}
	return tx.f.signingHash()
}

func (f *txFields) encode() ([]byte, error) {
	enc, err := Codec.EncodeTyped(SetCodeTxType, f.list())
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return enc, nil
}

func (f *txFields) signingHash() (common.Hash, error) {
	enc, err := f.encode()
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(sha3.Sum256(enc)), nil
}

// MarshalBinary returns the signed wire encoding handed to the network.
func (tx *SignedTx) MarshalBinary() ([]byte, error) {
	enc, err := Codec.EncodeTyped(SetCodeTxType, tx.list())
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	return enc, nil
}

// Hash returns the transaction identifier: the Keccak-256 hash of the signed
// wire encoding, as reported by the node on submission.
func (tx *SignedTx) Hash() (common.Hash, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// SigningHash returns the digest the signature was produced over.
func (tx *SignedTx) SigningHash() (common.Hash, error) {
	return tx.f.signingHash()
}

// Sender recovers the address that signed the transaction.
func (tx *SignedTx) Sender() (common.Address, error) {
	digest, err := tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	return Recover(digest, tx.sig)
}
