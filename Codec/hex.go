package Codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrDecode is returned for malformed hexadecimal input.
var ErrDecode = errors.New("invalid hex input")

// EncodeHex returns b as a 0x-prefixed lowercase hex string.
func EncodeHex(b []byte) string {
	return hexutil.Encode(b)
}

// DecodeHex parses a hex string with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}
