package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/multiread/internal/pkg/blockchain/abis"
)

// MulticallResult matches the tryAggregate output tuple.
type MulticallResult struct {
	Success    bool
	ReturnData []byte
}

// MulticallCall matches the tryAggregate input tuple.
type MulticallCall struct {
	Target   common.Address
	CallData []byte
}

// PackUint256 ABI-encodes v as a single uint256 return value.
func PackUint256(t *testing.T, v *big.Int) []byte {
	t.Helper()
	data, err := packUint256(v)
	if err != nil {
		t.Fatalf("packing uint256: %v", err)
	}
	return data
}

func packUint256(v *big.Int) ([]byte, error) {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: uint256Type}}.Pack(v)
}

// PackTryAggregate ABI-encodes results as tryAggregate return data.
func PackTryAggregate(t *testing.T, results []MulticallResult) []byte {
	t.Helper()
	data, err := packTryAggregate(results)
	if err != nil {
		t.Fatalf("packing tryAggregate: %v", err)
	}
	return data
}

func packTryAggregate(results []MulticallResult) ([]byte, error) {
	multicallABI, err := abis.GetMulticallABI()
	if err != nil {
		return nil, err
	}
	method, err := abis.Method(multicallABI, "tryAggregate")
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(results)
}

// PackTryAggregateCall ABI-encodes a full tryAggregate call, selector
// included, with the reference codec.
func PackTryAggregateCall(t *testing.T, requireSuccess bool, calls []MulticallCall) []byte {
	t.Helper()
	multicallABI, err := abis.GetMulticallABI()
	if err != nil {
		t.Fatalf("loading multicall ABI: %v", err)
	}
	data, err := multicallABI.Pack("tryAggregate", requireSuccess, calls)
	if err != nil {
		t.Fatalf("packing tryAggregate call: %v", err)
	}
	return data
}
