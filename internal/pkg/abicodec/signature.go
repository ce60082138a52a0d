package abicodec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
)

// selectorCacheSize bounds the process-wide selector memo. Signatures are
// defined statically so the working set is small.
const selectorCacheSize = 1024

var selectorCache = mustSelectorCache()

func mustSelectorCache() *lru.Cache[string, Selector] {
	c, err := lru.New[string, Selector](selectorCacheSize)
	if err != nil {
		panic(fmt.Sprintf("abicodec: creating selector cache: %v", err))
	}
	return c
}

// Selector is the 4-byte function identifier prefixed to calldata.
type Selector [4]byte

// Hex returns the 0x-prefixed hex form of the selector.
func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

// Bytes returns the selector as a fresh slice.
func (s Selector) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}

// Signature describes a contract function by name and ordered input and
// output types.
type Signature struct {
	Name    string
	Inputs  []Type
	Outputs []Type
}

// Canonical returns "name(type1,type2,...)", the string hashed into the selector.
func (s Signature) Canonical() string {
	return s.Name + "(" + joinTypes(s.Inputs) + ")"
}

func (s Signature) String() string {
	if len(s.Outputs) == 0 {
		return s.Canonical()
	}
	return s.Canonical() + "(" + joinTypes(s.Outputs) + ")"
}

// Validate checks the name and every input and output type.
func (s Signature) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: signature has no name", ErrEncoding)
	}
	for _, t := range s.Inputs {
		if err := t.validate(); err != nil {
			return fmt.Errorf("%s input: %w", s.Name, err)
		}
	}
	for _, t := range s.Outputs {
		if err := t.validate(); err != nil {
			return fmt.Errorf("%s output: %w", s.Name, err)
		}
	}
	return nil
}

// Selector returns the memoized selector of s.
func (s Signature) Selector() Selector {
	return SelectorOf(s)
}

// SelectorOf returns the first four bytes of the Keccak-256 hash of the
// signature's canonical form. Results are memoized process-wide.
func SelectorOf(sig Signature) Selector {
	canonical := sig.Canonical()
	if sel, ok := selectorCache.Get(canonical); ok {
		return sel
	}
	var sel Selector
	copy(sel[:], crypto.Keccak256([]byte(canonical))[:4])
	selectorCache.Add(canonical, sel)
	return sel
}

// ParseSignature parses "name(inputs)" or "name(inputs)(outputs)",
// e.g. "getUnderlyingPrice(address)(uint256)".
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return Signature{}, fmt.Errorf("%w: malformed signature %q", ErrEncoding, s)
	}
	name := s[:open]

	inputs, rest, err := splitGroup(s[open:])
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", s, err)
	}
	sig := Signature{Name: name}
	if sig.Inputs, err = ParseTypeList(inputs); err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", s, err)
	}

	if rest != "" {
		outputs, tail, err := splitGroup(rest)
		if err != nil {
			return Signature{}, fmt.Errorf("signature %q: %w", s, err)
		}
		if tail != "" {
			return Signature{}, fmt.Errorf("%w: trailing characters in signature %q", ErrEncoding, s)
		}
		if sig.Outputs, err = ParseTypeList(outputs); err != nil {
			return Signature{}, fmt.Errorf("signature %q: %w", s, err)
		}
	}

	if err := sig.Validate(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// MustParseSignature is like ParseSignature but panics on error. It is meant
// for statically defined signatures.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// splitGroup takes a string starting with '(' and returns the contents of
// the balanced group and whatever follows it.
func splitGroup(s string) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("%w: expected '(' in %q", ErrEncoding, s)
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("%w: unbalanced parentheses in %q", ErrEncoding, s)
}
