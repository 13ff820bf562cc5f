package Block

import (
	"math/big"
	"sync/atomic"

	"BundleGen/Codec"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SetCodeTxType is the type tag prepended to every encoded code-bundle transaction.
const SetCodeTxType = 0x04

// AccessTuple is the element type of an access list.
type AccessTuple struct {
	Address     common.Address
	StorageKeys [][]byte
}

// AccessList is an EIP-2930 style access list.
type AccessList []AccessTuple

// Authorization is a pre-signed code-bundle entry. It is embedded as is and
// never verified here.
type Authorization struct {
	Address common.Address
	V       uint8
	R       uint256.Int
	S       uint256.Int
}

// Signature is a recoverable secp256k1 signature. V is the raw recovery bit.
type Signature struct {
	V uint8
	R uint256.Int
	S uint256.Int
}

// TxParams carries caller supplied transaction fields before width checks.
// Nil big integers are treated as zero.
type TxParams struct {
	ChainID              *big.Int
	Nonce                *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	AccessList           AccessList
	Authorizations       []Authorization
}

// txFields is the shared body of the unsigned and signed forms.
type txFields struct {
	chainID        uint64
	nonce          uint64
	tip            uint64 // max priority fee per gas
	feeCap         uint64 // max fee per gas
	gas            uint64
	to             common.Address
	value          uint256.Int
	data           []byte
	accessList     AccessList
	authorizations []Authorization
}

const (
	stateUnsigned uint32 = iota
	stateSigning
	stateSigned
)

// UnsignedTx is an immutable code-bundle transaction awaiting its signature.
// It can be signed exactly once.
type UnsignedTx struct {
	f     txFields
	state atomic.Uint32
}

// SignedTx is the terminal form of a transaction: the unsigned fields plus
// the sender's signature.
type SignedTx struct {
	f   txFields
	sig Signature
}

// NewUnsignedTx checks every field against its declared width and returns the
// resulting transaction. Slices are copied, so later changes to params do not
// leak into the transaction.
func NewUnsignedTx(params TxParams) (*UnsignedTx, error) {
	wide := Codec.List{
		Codec.BigUint(64, params.ChainID),
		Codec.BigUint(64, params.Nonce),
		Codec.BigUint(64, params.MaxPriorityFeePerGas),
		Codec.BigUint(64, params.MaxFeePerGas),
		Codec.BigUint(64, params.GasLimit),
		Codec.BigUint(256, params.Value),
	}
	if err := Codec.Validate(wide); err != nil {
		return nil, err
	}
	f := txFields{
		chainID:        bigUint64(params.ChainID),
		nonce:          bigUint64(params.Nonce),
		tip:            bigUint64(params.MaxPriorityFeePerGas),
		feeCap:         bigUint64(params.MaxFeePerGas),
		gas:            bigUint64(params.GasLimit),
		to:             params.To,
		data:           common.CopyBytes(params.Data),
		accessList:     params.AccessList.Copy(),
		authorizations: copyAuthorizations(params.Authorizations),
	}
	if params.Value != nil {
		f.value.SetFromBig(params.Value)
	}
	return &UnsignedTx{f: f}, nil
}

func bigUint64(x *big.Int) uint64 {
	if x == nil {
		return 0
	}
	return x.Uint64()
}

// Copy returns a deep copy of the access list.
func (al AccessList) Copy() AccessList {
	if al == nil {
		return nil
	}
	cpy := make(AccessList, len(al))
	for i, tuple := range al {
		keys := make([][]byte, len(tuple.StorageKeys))
		for j, key := range tuple.StorageKeys {
			keys[j] = common.CopyBytes(key)
		}
		cpy[i] = AccessTuple{Address: tuple.Address, StorageKeys: keys}
	}
	return cpy
}

// StorageKeys returns the total number of storage keys in the access list.
func (al AccessList) StorageKeys() int {
	sum := 0
	for _, tuple := range al {
		sum += len(tuple.StorageKeys)
	}
	return sum
}

func copyAuthorizations(auths []Authorization) []Authorization {
	if auths == nil {
		return nil
	}
	cpy := make([]Authorization, len(auths))
	copy(cpy, auths)
	return cpy
}

func (f *txFields) copy() txFields {
	cpy := *f
	cpy.data = common.CopyBytes(f.data)
	cpy.accessList = f.accessList.Copy()
	cpy.authorizations = copyAuthorizations(f.authorizations)
	return cpy
}

// list returns the fields in wire order:
// [chain_id, nonce, tip, fee_cap, gas, to, value, data, access_list, authorizations]
func (f *txFields) list() Codec.List {
	accessList := make(Codec.List, len(f.accessList))
	for i, tuple := range f.accessList {
		keys := make(Codec.List, len(tuple.StorageKeys))
		for j, key := range tuple.StorageKeys {
			keys[j] = Codec.Bytes(key)
		}
		accessList[i] = Codec.List{Codec.Bytes(tuple.Address.Bytes()), keys}
	}
	auths := make(Codec.List, len(f.authorizations))
	for i := range f.authorizations {
		a := &f.authorizations[i]
		auths[i] = Codec.List{
			Codec.Bytes(a.Address.Bytes()),
			Codec.Uint8(a.V),
			Codec.Uint256(&a.R),
			Codec.Uint256(&a.S),
		}
	}
	return Codec.List{
		Codec.Uint64(f.chainID),
		Codec.Uint64(f.nonce),
		Codec.Uint64(f.tip),
		Codec.Uint64(f.feeCap),
		Codec.Uint64(f.gas),
		Codec.Bytes(f.to.Bytes()),
		Codec.Uint256(&f.value),
		Codec.Bytes(f.data),
		accessList,
		auths,
	}
}

func (f *txFields) params() TxParams {
	cpy := f.copy()
	return TxParams{
		ChainID:              new(big.Int).SetUint64(cpy.chainID),
		Nonce:                new(big.Int).SetUint64(cpy.nonce),
		MaxPriorityFeePerGas: new(big.Int).SetUint64(cpy.tip),
		MaxFeePerGas:         new(big.Int).SetUint64(cpy.feeCap),
		GasLimit:             new(big.Int).SetUint64(cpy.gas),
		To:                   cpy.to,
		Value:                cpy.value.ToBig(),
		Data:                 cpy.data,
		AccessList:           cpy.accessList,
		Authorizations:       cpy.authorizations,
	}
}

// Params returns a copy of the transaction fields.
func (tx *UnsignedTx) Params() TxParams { return tx.f.params() }

// Params returns a copy of the transaction fields.
func (tx *SignedTx) Params() TxParams { return tx.f.params() }

// Signature returns the sender's signature values.
func (tx *SignedTx) Signature() Signature { return tx.sig }

func (tx *SignedTx) list() Codec.List {
	return append(tx.f.list(),
		Codec.Uint8(tx.sig.V),
		Codec.Uint256(&tx.sig.R),
		Codec.Uint256(&tx.sig.S),
	)
}
