package abicodec

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const wordSize = 32

// Encode ABI-encodes values as a tuple of the given types.
//
// Accepted Go values per kind:
//
//	address     common.Address
//	uint256     *big.Int, *uint256.Int, uint64
//	bool        bool
//	string      string
//	bytes       []byte
//	tuple[]     [][]any, one []any per element in component order
func Encode(types []Type, values []any) ([]byte, error) {
	args, err := arguments(types)
	if err != nil {
		return nil, err
	}
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrEncoding, len(types), len(values))
	}

	packed := make([]any, len(values))
	for i, t := range types {
		v, err := toABIValue(t, args[i].Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		packed[i] = v
	}

	data, err := args.Pack(packed...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return data, nil
}

// EncodeCall returns the selector of sig followed by the encoded arguments.
func EncodeCall(sig Signature, args ...any) ([]byte, error) {
	if len(args) != len(sig.Inputs) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrEncoding, sig.Canonical(), len(sig.Inputs), len(args))
	}
	encoded, err := Encode(sig.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", sig.Canonical(), err)
	}
	sel := SelectorOf(sig)
	out := make([]byte, 0, len(sel)+len(encoded))
	out = append(out, sel[:]...)
	return append(out, encoded...), nil
}

// toABIValue checks v against t and converts it to the Go value go-ethereum
// packs for typ.
func toABIValue(t Type, typ abi.Type, v any) (any, error) {
	switch t.Kind {
	case KindAddress:
		addr, ok := v.(common.Address)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return addr, nil

	case KindUint256:
		u, err := toUint256(v)
		if err != nil {
			return nil, err
		}
		return u.ToBig(), nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return b, nil

	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return s, nil

	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		if b == nil {
			b = []byte{}
		}
		return b, nil

	case KindTupleArray:
		elems, ok := v.([][]any)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return toABITupleSlice(t.Components, typ, elems)

	default:
		return nil, fmt.Errorf("%w: unsupported type %s", ErrEncoding, t.Kind)
	}
}

// toABITupleSlice builds the []struct{Field0, Field1, ...} value go-ethereum
// expects for a tuple array.
func toABITupleSlice(components []Type, typ abi.Type, elems [][]any) (any, error) {
	slice := reflect.MakeSlice(typ.GetType(), len(elems), len(elems))
	for i, elem := range elems {
		if len(elem) != len(components) {
			return nil, fmt.Errorf("%w: element %d: expected %d values, got %d",
				ErrEncoding, i, len(components), len(elem))
		}
		tuple := slice.Index(i)
		for j, c := range components {
			fv, err := toABIValue(c, *typ.Elem.TupleElems[j], elem[j])
			if err != nil {
				return nil, fmt.Errorf("element %d value %d: %w", i, j, err)
			}
			tuple.Field(j).Set(reflect.ValueOf(fv))
		}
	}
	return slice.Interface(), nil
}

func toUint256(v any) (*uint256.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: nil uint256 value", ErrEncoding)
		}
		if n.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative value %s for uint256", ErrEncoding, n)
		}
		u, overflow := uint256.FromBig(n)
		if overflow {
			return nil, fmt.Errorf("%w: value %s overflows uint256", ErrEncoding, n)
		}
		return u, nil
	case *uint256.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: nil uint256 value", ErrEncoding)
		}
		return n, nil
	case uint64:
		return uint256.NewInt(n), nil
	default:
		return nil, typeMismatch(Uint256, v)
	}
}

func typeMismatch(t Type, v any) error {
	return fmt.Errorf("%w: %s cannot encode %T", ErrEncoding, t, v)
}
