package Codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// ErrFieldOverflow is returned when an integer does not fit its declared width.
var ErrFieldOverflow = errors.New("field overflow")

// Validate walks v and returns the first integer that does not fit its width.
func Validate(v Value) error {
	return validate(v, "")
}

func validate(v Value, path string) error {
	switch v := v.(type) {
	case Uint:
		if !Fits(v.Bits, v.X) {
			return fmt.Errorf("%w: value %s at %s exceeds %d bits", ErrFieldOverflow, v.X, pathOrRoot(path), v.Bits)
		}
	case Bytes:
	case List:
		for i, item := range v {
			if err := validate(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported value %T at %s", v, pathOrRoot(path))
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "root"
	}
	return path
}

// Encode returns the canonical encoding of v.
func Encode(v Value) ([]byte, error) {
	return Append(nil, v)
}

// EncodeTyped returns tag followed by the canonical encoding of v.
func EncodeTyped(tag byte, v Value) ([]byte, error) {
	return Append([]byte{tag}, v)
}

// Append appends the encoding of v to dst. The whole value is validated
// first; on error dst is returned unchanged.
func Append(dst []byte, v Value) ([]byte, error) {
	if err := Validate(v); err != nil {
		return dst, err
	}
	var buf bytes.Buffer
	w := rlp.NewEncoderBuffer(&buf)
	write(w, v)
	if err := w.Flush(); err != nil {
		return dst, fmt.Errorf("failed to flush encoder: %w", err)
	}
	return append(dst, buf.Bytes()...), nil
}

func write(w rlp.EncoderBuffer, v Value) {
	switch v := v.(type) {
	case Uint:
		if v.X == nil {
			w.WriteUint64(0)
			return
		}
		w.WriteBigInt(v.X)
	case Bytes:
		w.WriteBytes(v)
	case List:
		idx := w.List()
		for _, item := range v {
			write(w, item)
		}
		w.ListEnd(idx)
	}
}
