// Package abis holds the go-ethereum ABI definitions of the aggregator and
// the market contracts. The production codec is abicodec; these definitions
// give tests an independent reference.
package abis

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABI parses a contract ABI in its JSON form.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	return &parsed, nil
}

// Method returns the named method of parsed.
func Method(parsed *abi.ABI, name string) (abi.Method, error) {
	m, ok := parsed.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("method %s not found in ABI", name)
	}
	return m, nil
}
