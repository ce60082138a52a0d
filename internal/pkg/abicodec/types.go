// Package abicodec implements the contract ABI encoding used for read-only
// calls: function selectors, argument encoding and return data decoding.
//
// Only a closed set of primitive types is supported (address, uint256, bool,
// string, bytes and arrays of tuples built from those). Each kind is backed by
// a go-ethereum abi.Type, which does the wire packing; this package checks
// values against their kind on the way in and out.
package abicodec

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	// ErrEncoding is returned for malformed signatures, argument count or type
	// mismatches and values that cannot be represented in their ABI type.
	ErrEncoding = errors.New("abi encoding error")

	// ErrDecoding is returned when data cannot be decoded as the expected types.
	ErrDecoding = errors.New("abi decoding error")
)

// Kind identifies one of the supported ABI primitive types.
type Kind uint8

const (
	KindAddress Kind = iota + 1
	KindUint256
	KindBool
	KindString
	KindBytes
	KindTupleArray
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindUint256:
		return "uint256"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTupleArray:
		return "tuple[]"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Type is an ABI type. Components is only used by KindTupleArray and lists
// the fields of the array's element tuple.
type Type struct {
	Kind       Kind
	Components []Type
}

var (
	Address = Type{Kind: KindAddress}
	Uint256 = Type{Kind: KindUint256}
	Bool    = Type{Kind: KindBool}
	String  = Type{Kind: KindString}
	Bytes   = Type{Kind: KindBytes}
)

// TupleArrayOf returns the type of a dynamic array of tuples with the given fields.
func TupleArrayOf(components ...Type) Type {
	return Type{Kind: KindTupleArray, Components: components}
}

// String returns the canonical form used in function signatures,
// e.g. "uint256" or "(address,bytes)[]".
func (t Type) String() string {
	if t.Kind != KindTupleArray {
		return t.Kind.String()
	}
	return "(" + joinTypes(t.Components) + ")[]"
}

func (t Type) validate() error {
	switch t.Kind {
	case KindAddress, KindUint256, KindBool, KindString, KindBytes:
		if len(t.Components) != 0 {
			return fmt.Errorf("%w: %s cannot have components", ErrEncoding, t.Kind)
		}
		return nil
	case KindTupleArray:
		if len(t.Components) == 0 {
			return fmt.Errorf("%w: tuple array needs at least one component", ErrEncoding)
		}
		for _, c := range t.Components {
			if err := c.validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrEncoding, t.Kind)
	}
}

// marshaling describes t to go-ethereum. Tuple components are named
// field0, field1, ... and so become the struct fields Field0, Field1, ...
func (t Type) marshaling(name string) abi.ArgumentMarshaling {
	m := abi.ArgumentMarshaling{Name: name, Type: t.Kind.String()}
	for i, c := range t.Components {
		m.Components = append(m.Components, c.marshaling(fmt.Sprintf("field%d", i)))
	}
	return m
}

// argumentCache maps the canonical form of a type list to its abi.Arguments.
var argumentCache sync.Map

// arguments returns the go-ethereum arguments backing types.
func arguments(types []Type) (abi.Arguments, error) {
	for _, t := range types {
		if err := t.validate(); err != nil {
			return nil, err
		}
	}

	key := joinTypes(types)
	if cached, ok := argumentCache.Load(key); ok {
		return cached.(abi.Arguments), nil
	}

	args := make(abi.Arguments, len(types))
	for i, t := range types {
		m := t.marshaling("")
		typ, err := abi.NewType(m.Type, "", m.Components)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEncoding, t, err)
		}
		args[i] = abi.Argument{Type: typ}
	}
	argumentCache.Store(key, args)
	return args, nil
}

func joinTypes(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// ParseType parses a canonical type string such as "address" or
// "(address,bytes)[]". "uint" is accepted as an alias of "uint256".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "address":
		return Address, nil
	case "uint256", "uint":
		return Uint256, nil
	case "bool":
		return Bool, nil
	case "string":
		return String, nil
	case "bytes":
		return Bytes, nil
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")[]") {
		components, err := ParseTypeList(s[1 : len(s)-3])
		if err != nil {
			return Type{}, err
		}
		t := TupleArrayOf(components...)
		if err := t.validate(); err != nil {
			return Type{}, err
		}
		return t, nil
	}
	return Type{}, fmt.Errorf("%w: unsupported type %q", ErrEncoding, s)
}

// ParseTypeList parses a comma separated list of types. Commas nested inside
// tuple parentheses do not split the list. An empty string yields no types.
func ParseTypeList(s string) ([]Type, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var (
		types []Type
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrEncoding, s)
			}
		case ',':
			if depth == 0 {
				t, err := ParseType(s[start:i])
				if err != nil {
					return nil, err
				}
				types = append(types, t)
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrEncoding, s)
	}
	t, err := ParseType(s[start:])
	if err != nil {
		return nil, err
	}
	return append(types, t), nil
}
