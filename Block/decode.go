package Block

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrInvalidTx is returned for wire bytes that are not a signed code-bundle
// transaction.
var ErrInvalidTx = errors.New("invalid transaction encoding")

// DecodeSignedTx parses the signed wire encoding produced by
// SignedTx.MarshalBinary.
func DecodeSignedTx(raw []byte) (*SignedTx, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidTx)
	}
	if raw[0] != SetCodeTxType {
		return nil, fmt.Errorf("%w: unexpected type 0x%02x", ErrInvalidTx, raw[0])
	}
	tx := new(SignedTx)
	s := rlp.NewStream(bytes.NewReader(raw[1:]), uint64(len(raw)-1))
	if err := tx.decode(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	if _, _, err := s.Kind(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after transaction", ErrInvalidTx)
	}
	return tx, nil
}

func (tx *SignedTx) decode(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}
	f := &tx.f
	var err error
	if f.chainID, err = s.Uint64(); err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if f.nonce, err = s.Uint64(); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	if f.tip, err = s.Uint64(); err != nil {
		return fmt.Errorf("max priority fee: %w", err)
	}
	if f.feeCap, err = s.Uint64(); err != nil {
		return fmt.Errorf("max fee: %w", err)
	}
	if f.gas, err = s.Uint64(); err != nil {
		return fmt.Errorf("gas limit: %w", err)
	}
	if f.to, err = decodeAddress(s); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if err = s.ReadUint256(&f.value); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if f.data, err = s.Bytes(); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if f.accessList, err = decodeAccessList(s); err != nil {
		return fmt.Errorf("access list: %w", err)
	}
	if f.authorizations, err = decodeAuthorizations(s); err != nil {
		return fmt.Errorf("authorizations: %w", err)
	}
	if tx.sig, err = decodeSignature(s); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	return s.ListEnd()
}

func decodeAddress(s *rlp.Stream) (common.Address, error) {
	b, err := s.Bytes()
	if err != nil {
		return common.Address{}, err
	}
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("wrong address size %d", len(b))
	}
	return common.BytesToAddress(b), nil
}

func decodeAccessList(s *rlp.Stream) (AccessList, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	al := AccessList{}
	for s.MoreDataInList() {
		if _, err := s.List(); err != nil {
			return nil, err
		}
		addr, err := decodeAddress(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.List(); err != nil {
			return nil, err
		}
		keys := [][]byte{}
		for s.MoreDataInList() {
			key, err := s.Bytes()
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		if err := s.ListEnd(); err != nil {
			return nil, err
		}
		if err := s.ListEnd(); err != nil {
			return nil, err
		}
		al = append(al, AccessTuple{Address: addr, StorageKeys: keys})
	}
	return al, s.ListEnd()
}

func decodeAuthorizations(s *rlp.Stream) ([]Authorization, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	auths := []Authorization{}
	for s.MoreDataInList() {
		if _, err := s.List(); err != nil {
			return nil, err
		}
		var auth Authorization
		var err error
		if auth.Address, err = decodeAddress(s); err != nil {
			return nil, err
		}
		if auth.V, err = s.Uint8(); err != nil {
			return nil, err
		}
		if err = s.ReadUint256(&auth.R); err != nil {
			return nil, err
		}
		if err = s.ReadUint256(&auth.S); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		auths = append(auths, auth)
	}
	return auths, s.ListEnd()
}

func decodeSignature(s *rlp.Stream) (Signature, error) {
	var sig Signature
	var err error
	if sig.V, err = s.Uint8(); err != nil {
		return sig, err
	}
	if err = s.ReadUint256(&sig.R); err != nil {
		return sig, err
	}
	if err = s.ReadUint256(&sig.S); err != nil {
		return sig, err
	}
	return sig, nil
}
