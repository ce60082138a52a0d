package abicodec

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Decode decodes data as a tuple of the given types. Values are returned in
// the Go forms documented on Encode, with uint256 decoded as *big.Int.
// Trailing bytes after the last referenced value are ignored.
func Decode(types []Type, data []byte) ([]any, error) {
	args, err := arguments(types)
	if err != nil {
		return nil, err
	}
	if len(data) < wordSize*len(types) {
		return nil, fmt.Errorf("%w: tuple of %d values needs %d bytes, got %d",
			ErrDecoding, len(types), wordSize*len(types), len(data))
	}

	// Top-level addresses must be left padded with zeros.
	for i, t := range types {
		if t.Kind != KindAddress {
			continue
		}
		head := data[i*wordSize : (i+1)*wordSize]
		if !allZero(head[:wordSize-common.AddressLength]) {
			return nil, fmt.Errorf("%w: value %d: address has dirty high bytes", ErrDecoding, i)
		}
	}

	unpacked, err := args.UnpackValues(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}

	values := make([]any, len(types))
	for i, t := range types {
		v, err := fromABIValue(t, unpacked[i])
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// DecodeUint256 decodes data holding a single uint256.
func DecodeUint256(data []byte) (*uint256.Int, error) {
	if len(data) < wordSize {
		return nil, fmt.Errorf("%w: need %d bytes for uint256, got %d", ErrDecoding, wordSize, len(data))
	}
	return new(uint256.Int).SetBytes32(data[:wordSize]), nil
}

// fromABIValue converts a value unpacked by go-ethereum to the form
// documented on Encode.
func fromABIValue(t Type, v any) (any, error) {
	switch t.Kind {
	case KindAddress:
		if addr, ok := v.(common.Address); ok {
			return addr, nil
		}
	case KindUint256:
		if n, ok := v.(*big.Int); ok {
			return n, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return bytes.Clone(b), nil
		}
	case KindTupleArray:
		return fromABITupleSlice(t.Components, v)
	}
	return nil, fmt.Errorf("%w: %s decoded as %T", ErrDecoding, t, v)
}

// fromABITupleSlice flattens the []struct value go-ethereum returns for a
// tuple array into one []any per element.
func fromABITupleSlice(components []Type, v any) ([][]any, error) {
	slice := reflect.ValueOf(v)
	if slice.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: tuple array decoded as %T", ErrDecoding, v)
	}

	elems := make([][]any, slice.Len())
	for i := range elems {
		tuple := slice.Index(i)
		if tuple.Kind() != reflect.Struct || tuple.NumField() != len(components) {
			return nil, fmt.Errorf("%w: element %d decoded as %s", ErrDecoding, i, tuple.Type())
		}
		elem := make([]any, len(components))
		for j, c := range components {
			fv, err := fromABIValue(c, tuple.Field(j).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			elem[j] = fv
		}
		elems[i] = elem
	}
	return elems, nil
}

func allZero(b []byte) bool {
	return len(bytes.TrimLeft(b, "\x00")) == 0
}
