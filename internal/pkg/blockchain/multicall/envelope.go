package multicall

import (
	"fmt"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

var (
	ErrEmptyBatch       = fmt.Errorf("%w: batch has no calls", abicodec.ErrEncoding)
	ErrCalldataTooLarge = fmt.Errorf("%w: calldata exceeds transport limit", abicodec.ErrEncoding)
)

// BuildBatchCalldata encodes tryAggregate(requireSuccess, calls), selector
// included. maxCalldataSize bounds every call's calldata; 0 disables the check.
// Oversized calls are reported, never truncated.
func BuildBatchCalldata(calls []outbound.Call, requireSuccess bool, maxCalldataSize int) ([]byte, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}

	for i, call := range calls {
		if maxCalldataSize > 0 && len(call.CallData) > maxCalldataSize {
			return nil, fmt.Errorf("%w: call %d to %s carries %d bytes, limit is %d",
				ErrCalldataTooLarge, i, call.Target.Hex(), len(call.CallData), maxCalldataSize)
		}
	}

	parsed, err := multicallABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load multicall ABI: %w", err)
	}

	data, err := parsed.Pack(tryAggregateMethod, requireSuccess, calls)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack batch of %d calls: %w", abicodec.ErrEncoding, len(calls), err)
	}
	return data, nil
}
