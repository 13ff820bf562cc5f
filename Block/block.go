package Block

import (
	"encoding/json"
	"fmt"
	"os"
)

// AccountInfo represents the wallet account information from JSON
type AccountInfo struct {
	DID       string `json:"did"`
	Mnemonic  string `json:"mnemonic"`
	PublicKey string `json:"public_key"`
}

// LoadAccountInfo loads the account information from the provided JSON file
func LoadAccountInfo(filePath string) (*AccountInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading account file: %w", err)
	}

	var account AccountInfo
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("error parsing account data: %w", err)
	}

	return &account, nil
}

// LoadAccountKey derives the signing key of the account stored at filePath.
func LoadAccountKey(filePath string) (*Key, error) {
	accountInfo, err := LoadAccountInfo(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	key, err := KeyFromMnemonic(accountInfo.Mnemonic, DefaultDerivationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return key, nil
}

// Sign consumes tx and returns its signed form. It succeeds at most once per
// transaction; later calls return ErrAlreadySigned. If signing fails the
// transaction stays unsigned and may be signed again.
func (tx *UnsignedTx) Sign(key *Key) (*SignedTx, error) {
	if !tx.state.CompareAndSwap(stateUnsigned, stateSigning) {
		return nil, ErrAlreadySigned
	}
	signed, err := tx.sign(key)
	if err != nil {
		tx.state.Store(stateUnsigned)
		return nil, err
	}
	tx.state.Store(stateSigned)
	return signed, nil
}

func (tx *UnsignedTx) sign(key *Key) (*SignedTx, error) {
	digest, err := tx.f.signingHash()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return assemble(&tx.f, sig), nil
}

// assemble joins the unsigned fields and the signature. The signed form gets
// its own copy of every slice.
func assemble(f *txFields, sig Signature) *SignedTx {
	return &SignedTx{f: f.copy(), sig: sig}
}

// SignWithHexKey signs tx with a hex encoded private key. The parsed key is
// wiped before returning.
func SignWithHexKey(tx *UnsignedTx, hexKey string) (*SignedTx, error) {
	var signed *SignedTx
	err := WithKey(hexKey, func(key *Key) error {
		var err error
		signed, err = tx.Sign(key)
		return err
	})
	return signed, err
}

// GenerateSetCodeTransaction creates a code-bundle (type 0x04) transaction
// signed by the account stored at accountPath.
func GenerateSetCodeTransaction(accountPath string, params TxParams) (*SignedTx, error) {
	key, err := LoadAccountKey(accountPath)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	tx, err := NewUnsignedTx(params)
	if err != nil {
		return nil, err
	}
	return tx.Sign(key)
}
